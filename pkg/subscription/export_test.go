package subscription

// DecodePaddleEvent exposes the payload decoder to tests without a signature.
var DecodePaddleEvent = decodePaddleEvent
