// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// votingABI is the subset of the DecentralizedVoting contract this service
// calls.
const votingABI = `[
 {"type":"function","name":"electionCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"elections","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],
  "outputs":[{"name":"id","type":"uint256"},{"name":"title","type":"string"},{"name":"isStarted","type":"bool"},{"name":"isEnded","type":"bool"},{"name":"candidateCount","type":"uint256"}]},
 {"type":"function","name":"admins","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"createElection","stateMutability":"nonpayable","inputs":[{"name":"title","type":"string"}],"outputs":[]},
 {"type":"function","name":"addCandidate","stateMutability":"nonpayable","inputs":[{"name":"electionId","type":"uint256"},{"name":"name","type":"string"}],"outputs":[]},
 {"type":"function","name":"startElection","stateMutability":"nonpayable","inputs":[{"name":"electionId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"endElection","stateMutability":"nonpayable","inputs":[{"name":"electionId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"voteWithSignature","stateMutability":"nonpayable",
  "inputs":[{"name":"electionId","type":"uint256"},{"name":"candidateId","type":"uint256"},{"name":"voter","type":"address"},{"name":"signature","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"getVoter","stateMutability":"view","inputs":[{"name":"electionId","type":"uint256"},{"name":"voter","type":"address"}],
  "outputs":[{"name":"hasVoted","type":"bool"},{"name":"votedCandidateId","type":"uint256"}]},
 {"type":"function","name":"getCandidate","stateMutability":"view","inputs":[{"name":"electionId","type":"uint256"},{"name":"candidateId","type":"uint256"}],
  "outputs":[{"name":"name","type":"string"},{"name":"voteCount","type":"uint256"}]},
 {"type":"function","name":"getElectionCandidates","stateMutability":"view","inputs":[{"name":"electionId","type":"uint256"}],
  "outputs":[{"name":"ids","type":"uint256[]"},{"name":"names","type":"string[]"},{"name":"addresses","type":"address[]"},{"name":"voteCounts","type":"uint256[]"}]},
 {"type":"function","name":"isElectionStarted","stateMutability":"view","inputs":[{"name":"electionId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"isElectionEnded","stateMutability":"view","inputs":[{"name":"electionId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"event","name":"ElectionCreated","anonymous":false,"inputs":[{"name":"electionId","type":"uint256","indexed":false},{"name":"title","type":"string","indexed":false}]},
 {"type":"event","name":"CandidateAdded","anonymous":false,
  "inputs":[{"name":"electionId","type":"uint256","indexed":false},{"name":"candidateId","type":"uint256","indexed":false},{"name":"name","type":"string","indexed":false},{"name":"candidateAddress","type":"address","indexed":false}]}
]`

var contractABI = mustParseABI(votingABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("ledger: invalid contract ABI: " + err.Error())
	}
	return parsed
}

// ContractABI returns the parsed contract interface.
func ContractABI() abi.ABI {
	return contractABI
}

type CandidateAdded struct {
	ElectionID  uint64
	CandidateID uint64
	Name        string
	Address     common.Address
}

type ElectionCreated struct {
	ElectionID uint64
	Title      string
}

// CandidateAdded decodes the first CandidateAdded event in the receipt.
// Logs that fail to decode are skipped.
func (r Receipt) CandidateAdded() (CandidateAdded, bool) {
	for _, vals := range eventValues(r.Logs, "CandidateAdded", 4) {
		electionID, ok1 := vals[0].(*big.Int)
		candidateID, ok2 := vals[1].(*big.Int)
		name, ok3 := vals[2].(string)
		addr, ok4 := vals[3].(common.Address)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		return CandidateAdded{
			ElectionID:  electionID.Uint64(),
			CandidateID: candidateID.Uint64(),
			Name:        name,
			Address:     addr,
		}, true
	}
	return CandidateAdded{}, false
}

// ElectionCreated decodes the first ElectionCreated event in the receipt.
func (r Receipt) ElectionCreated() (ElectionCreated, bool) {
	for _, vals := range eventValues(r.Logs, "ElectionCreated", 2) {
		electionID, ok1 := vals[0].(*big.Int)
		title, ok2 := vals[1].(string)
		if !ok1 || !ok2 {
			continue
		}
		return ElectionCreated{ElectionID: electionID.Uint64(), Title: title}, true
	}
	return ElectionCreated{}, false
}

func eventValues(logs []*types.Log, name string, arity int) [][]any {
	ev, ok := contractABI.Events[name]
	if !ok {
		return nil
	}
	var out [][]any
	for _, l := range logs {
		if l == nil || len(l.Topics) == 0 || l.Topics[0] != ev.ID {
			continue
		}
		vals, err := ev.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil || len(vals) != arity {
			continue
		}
		out = append(out, vals)
	}
	return out
}

// EventLog builds a log entry for the named event, as the contract would
// emit it. args must match the event's inputs in order.
func EventLog(contract common.Address, name string, args ...any) (*types.Log, error) {
	ev, ok := contractABI.Events[name]
	if !ok {
		return nil, fmt.Errorf("ledger: unknown event %s", name)
	}
	data, err := ev.Inputs.Pack(args...)
	if err != nil {
		return nil, err
	}
	return &types.Log{Address: contract, Topics: []common.Hash{ev.ID}, Data: data}, nil
}
