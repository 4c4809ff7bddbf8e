package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           reflectd API
// @version         1.0
// @description     HTTP API for local journal reflection: model provisioning, inference and caching.
//
// @contact.name   reflectd maintainers
// @contact.url    https://github.com/your-org/reflectd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
