// Package generate runs the text generation tools behind the credit gate.
//
// Each Tool is a system prompt sent with the user's input to an OpenAI compatible
// chat completion endpoint (github.com/sashabaranov/go-openai). A generation costs
// one credit. The balance is checked before the model is called and the credit is
// debited only after a non-empty completion, so failed completions are free. A caller
// without credits gets ErrInsufficientCredits and no completion is requested.
package generate
