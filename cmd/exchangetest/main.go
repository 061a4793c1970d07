package main

import app "exchange-test-runner/internal/app"

func main() {
	app.Run()
}
