// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles configuration from CLI flags, environment
variables and an optional .env file.

# CLI Flags

	-p, --port             Server port
	-d, --database-url     Database URL
	-t, --database-type    sqlite or postgres
	--jwt-secret           Session signing secret
	--ip-salt              Vote IP hashing salt
	--token-ttl            Session lifetime (e.g. 168h)
	--base-url             Public URL for share links
	--expiry-interval      Poll expiry sweep interval
	--log-level            debug, info, warn, error
	--dev                  Development logging
	--env-file             dotenv file (default .env)

# Environment Variables

Flags fall back to environment variables:

	PORT            → -p
	DATABASE_URL    → -d
	DATABASE_TYPE   → -t
	JWT_SECRET      → --jwt-secret
	IP_HASH_SALT    → --ip-salt
	TOKEN_TTL       → --token-ttl
	BASE_URL        → --base-url
	EXPIRY_INTERVAL → --expiry-interval
	LOG_LEVEL       → --log-level
	DEV             → --dev

CLI flags take precedence over environment variables, and variables
already set in the process take precedence over the .env file.

# Validation

ParseFlags returns an error if DATABASE_URL is missing or any value fails
to parse. The serve command additionally calls RequireSecrets, which
demands JWT_SECRET and IP_HASH_SALT; maintenance commands such as migrate
run without them.

# Example

	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
*/
package cliparse
