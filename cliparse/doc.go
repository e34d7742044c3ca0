// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# CLI Flags and Environment Variables

	-p                PORT                3318
	-d                DATABASE_URL        required
	-t                DATABASE_TYPE       sqlite (or postgres)
	-rpc              LEDGER_RPC_URL      required
	-contract         CONTRACT_ADDRESS    required
	-signer-key       SIGNER_PRIVATE_KEY  required
	-confirm-timeout  CONFIRM_TIMEOUT     2m
	-sync-schedule    SYNC_SCHEDULE       @every 1m
	-sync-workers     SYNC_WORKERS        4
	-admin-cache-ttl  ADMIN_CACHE_TTL     30s

CLI flags take precedence over environment variables. A .env file in the
working directory is loaded before the environment is read; variables
already set in the process win over the file.

# Validation

ParseFlags fails when a required value is missing, the contract address is
not a hex address, the signer key is not a secp256k1 key, a duration does not
parse or is negative, or the sync schedule is not a standard cron spec.

# Example

	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	client, err := ledger.Dial(ctx, cfg.Ledger())
	// ...
*/
package cliparse
