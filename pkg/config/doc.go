// Package config loads typed configuration from the environment.
//
// Structs are annotated with github.com/caarlos0/env/v11 tags; nested structs can
// use envPrefix to reuse a shared shape (for example a retry policy) under several
// prefixes. A .env file in the working directory is loaded once with
// github.com/joho/godotenv before the first parse; real environment variables win.
//
//	type AppConfig struct {
//		Addr     string       `env:"HTTP_ADDR" envDefault:":8080"`
//		Postgres pg.Config
//		Resolver retry.Policy `envPrefix:"RESOLVER_RETRY_"`
//	}
//
//	var cfg AppConfig
//	config.MustLoad(&cfg)
//
// Each configuration type is parsed once per process and cached; ResetCache clears
// the cache for tests.
package config
