package main

import "github.com/Anilsharma012/vastralaya4-sub000/internal/app"

func main() {
	app.Start()
}
