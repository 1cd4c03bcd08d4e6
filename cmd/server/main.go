package main

import (
	_ "github.com/eleven-am/spark-backend/docs"
	"github.com/eleven-am/spark-backend/internal/bootstrap"
)

// @title Spark API
// @version 1.0.0
// @description Anonymous timed video encounters: pool admission, pairing, decisions and connections.

// @BasePath /v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	bootstrap.Run()
}
