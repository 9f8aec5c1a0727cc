package main

//go:generate swag init -g cmd/orchestrator/main.go -o docs

// @title           zkpay Trade Orchestrator API
// @version         0.1.0
// @description     Receipt upload, validation, proof generation and settlement tracking for escrowed fiat trades.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
