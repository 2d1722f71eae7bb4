package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           tunerd API
// @version         1.0
// @description     HTTP API for LoRA adapter training and management of local language models.
//
// @contact.name   tunerd maintainers
// @contact.url    https://github.com/your-org/tunerd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
