//go:build tinygo && baremetal

package main

import (
	"titan/app"
	"titan/hal"
)

func main() {
	app.Run(hal.New())
}
