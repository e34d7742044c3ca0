// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ledger is the typed boundary to the voting contract, the system of
record for elections, candidates, tallies, and ballots.

# Client

Client submits state-changing operations and blocks until each is
confirmed. EthClient implements it over go-ethereum:

	client, err := ledger.Dial(ctx, ledger.Config{
		RPCURL:          cfg.LedgerRPCURL,
		ContractAddress: cfg.ContractAddress,
		SignerKey:       cfg.SignerKey,
		ConfirmTimeout:  cfg.ConfirmTimeout,
	})

# Outcomes

A submission ends in one of three ways:

  - confirmed: a Receipt with Confirmed set and the transaction's logs
  - rejected: a *TxError wrapping ErrRejected; nothing changed on the ledger
  - indeterminate: a *TxError wrapping ErrIndeterminate with the TxRef of a
    transaction that may still be mined. Read state to find out; never
    resubmit blindly.

# Events

Receipt.CandidateAdded and Receipt.ElectionCreated decode events
best-effort. ResolveCandidate and ResolveElection fall back to state reads
when an event is missing and cross-check the result against what was
submitted before trusting it.
*/
package ledger
