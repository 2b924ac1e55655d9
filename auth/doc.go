// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides password hashing, session tokens and input
normalization for accounts.

# Passwords

Passwords are hashed with bcrypt:

	hash, err := auth.HashPassword(password)
	err := auth.CheckPassword(hash, candidate)

Passwords must be 8-72 bytes; bcrypt silently truncates anything longer.

# Session Tokens

Sessions are HS256 JWTs with the user ID in the subject claim:

	token, err := auth.IssueToken(userID, secret, ttl, time.Now())
	claims, err := auth.ParseToken(token, secret)

ParseToken returns ErrExpiredToken for expired tokens and ErrInvalidToken
for anything else that fails verification.

# Usernames and Emails

NormalizeUsername lowercases and enforces [a-z0-9_]{3,30}. NormalizeEmail
lowercases and rejects display-name forms.

# ID Generation

Random hex IDs for connection identifiers:

	id, err := auth.GenerateID(8)  // 16 hex characters

# IP Hashing

For privacy-preserving abuse detection on votes:

	hash := auth.HashIP(ipAddress, salt)

Returns first 8 bytes (16 hex chars) of HMAC-SHA256.
*/
package auth
