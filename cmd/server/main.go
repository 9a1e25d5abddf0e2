package main

import "collegenetwork/internal/app"

// @title           College Network OTP API
// @version         1.0
// @description     One-time password delivery and verification.
// @BasePath        /api/otp
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app.Run()
}
