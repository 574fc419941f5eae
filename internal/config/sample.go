// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"io"

	"github.com/BurntSushi/toml"
)

// sampleFile mirrors the TOML keys read by Flags.
type sampleFile struct { //nolint:govet // fieldalignment not critical for config structs
	Server struct {
		Host          string  `toml:"host"`
		Port          int     `toml:"port"`
		BaseURL       string  `toml:"base_url"`
		FrontendURL   string  `toml:"frontend_url"`
		MaxBodySize   int     `toml:"max_body_size"`
		UploadMaxSize int     `toml:"upload_max_size"`
		RateLimit     float64 `toml:"rate_limit"`
		RateBurst     int     `toml:"rate_burst"`
		Dev           bool    `toml:"dev"`
	} `toml:"server"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Database struct {
		DSN string `toml:"dsn"`
	} `toml:"database"`
	Auth struct {
		JWTSecret       string `toml:"jwt_secret"`
		SessionDuration int    `toml:"session_duration"`
		RefreshDuration int    `toml:"refresh_duration"`
		RefreshHashKey  string `toml:"refresh_hash_key"`
		RefreshBlockKey string `toml:"refresh_block_key"`
		OTPSecret       string `toml:"otp_secret"`
		MaxFailedLogins int    `toml:"max_failed_logins"`
		LockoutMinutes  int    `toml:"lockout_minutes"`
	} `toml:"auth"`
	SMTP struct {
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
		Username string `toml:"username"`
		Password string `toml:"password"`
		From     string `toml:"from"`
		FromName string `toml:"from_name"`
		TLS      bool   `toml:"tls"`
	} `toml:"smtp"`
	Storage struct {
		Endpoint     string `toml:"endpoint"`
		Region       string `toml:"region"`
		Bucket       string `toml:"bucket"`
		AccessKey    string `toml:"access_key"`
		SecretKey    string `toml:"secret_key"`
		UsePathStyle bool   `toml:"use_path_style"`
	} `toml:"storage"`
}

// WriteSample writes a config.toml with the default values and freshly
// generated secrets.
func WriteSample(w io.Writer) error {
	var s sampleFile

	s.Server.Host = "localhost"
	s.Server.Port = 8080
	s.Server.MaxBodySize = 1
	s.Server.UploadMaxSize = 20
	s.Server.RateLimit = 5
	s.Server.RateBurst = 10

	s.Log.Level = "info"
	s.Log.Format = "text"

	s.Database.DSN = "./data/medivault.db"

	s.Auth.JWTSecret = randomHex(32)
	s.Auth.SessionDuration = 168
	s.Auth.RefreshDuration = 720
	s.Auth.RefreshHashKey = randomHex(32)
	s.Auth.RefreshBlockKey = randomHex(32)
	s.Auth.MaxFailedLogins = 5
	s.Auth.LockoutMinutes = 15

	s.SMTP.Port = 587
	s.SMTP.From = "noreply@medivault.local"
	s.SMTP.FromName = "MediVault"
	s.SMTP.TLS = true

	s.Storage.Region = "us-east-1"

	return toml.NewEncoder(w).Encode(s)
}
