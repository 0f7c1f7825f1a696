package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           nlud API
// @version         1.0
// @description     HTTP API for NLU bot mounting, training and prediction.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
