// Command shieldengine-cli provides one-shot subcommands against a running
// indexer and settlement RPC endpoint: scan, balance, spend, vote.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/ccoin/shieldengine/internal/config"
	"github.com/ccoin/shieldengine/internal/curve"
	"github.com/ccoin/shieldengine/internal/elgamal"
	"github.com/ccoin/shieldengine/internal/field"
	"github.com/ccoin/shieldengine/internal/indexerclient"
	"github.com/ccoin/shieldengine/internal/note"
	"github.com/ccoin/shieldengine/internal/orchestrator"
	"github.com/ccoin/shieldengine/internal/retry"
	"github.com/ccoin/shieldengine/internal/scanner"
	"github.com/ccoin/shieldengine/internal/settlementclient"
	"github.com/ccoin/shieldengine/internal/stealth"
	"github.com/ccoin/shieldengine/internal/storage"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	cfg, extra, err := config.Load(os.Args[2:], os.Getenv("SHIELDENGINE_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var runErr error
	switch cmd {
	case "scan":
		runErr = runScan(ctx, cfg)
	case "balance":
		runErr = runBalance(ctx, cfg)
	case "spend":
		runErr = runSpend(ctx, cfg, extra)
	case "vote":
		runErr = runVote(ctx, cfg, extra)
	case "version":
		fmt.Printf("shieldengine-cli v%s\n", version)
		return
	default:
		usage()
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: shieldengine-cli <scan|balance|spend|vote|version> [flags] [operands]")
	fmt.Fprintln(os.Stderr, "  scan                                                                  scan the indexer for owned notes")
	fmt.Fprintln(os.Stderr, "  balance                                                               report unspent-note counts")
	fmt.Fprintln(os.Stderr, "  spend <pool_id_hex> <mint> <amount> <recipient_x> <recipient_y>       spend an unspent note to a stealth recipient")
	fmt.Fprintln(os.Stderr, "  vote <pool_id_hex> <proposal_id> <option> <power> <election_x> <election_y>  cast an ElGamal ballot against an action nullifier")
}

func retryConfig(cfg *config.Config) retry.Config {
	return retry.Config{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		CapDelay:   cfg.Retry.CapDelay,
		Jitter:     cfg.Retry.Jitter,
	}
}

func postgresConfig(cfg *config.Config) *storage.Config {
	return &storage.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  "disable",
		MaxConns: 5,
	}
}

// spendingKey resolves the caller's spending key from the SHIELDENGINE_SK
// environment variable; the CLI never accepts a key on the command line to
// avoid it leaking into shell history or process listings.
func spendingKey() (*big.Int, error) {
	raw := os.Getenv("SHIELDENGINE_SK")
	if raw == "" {
		return nil, fmt.Errorf("SHIELDENGINE_SK is not set")
	}
	sk, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("SHIELDENGINE_SK is not a valid decimal integer")
	}
	return sk, nil
}

// parsePoolID decodes a hex-encoded 32-byte pool id operand.
func parsePoolID(s string) ([32]byte, error) {
	var id [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("pool id %q is not valid hex: %w", s, err)
	}
	if len(b) != 32 {
		return id, fmt.Errorf("pool id %q must decode to 32 bytes, got %d", s, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// parseFieldDecimal parses a base-10 operand into a field element, reducing
// modulo p rather than rejecting out-of-range values since these come from
// the shell, not from a canonical on-chain encoding.
func parseFieldDecimal(name, s string) (field.Element, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return field.Element{}, fmt.Errorf("%s %q is not a decimal integer", name, s)
	}
	return field.FromBigInt(v), nil
}

// parsePoint decodes a BabyJubJub point from decimal x/y operands.
func parsePoint(xDec, yDec string) (curve.Point, error) {
	x, ok := new(big.Int).SetString(xDec, 10)
	if !ok {
		return curve.Point{}, fmt.Errorf("x coordinate %q is not a decimal integer", xDec)
	}
	y, ok := new(big.Int).SetString(yDec, 10)
	if !ok {
		return curve.Point{}, fmt.Errorf("y coordinate %q is not a decimal integer", yDec)
	}
	xb := field.FromBigInt(x).ToBytesBE()
	yb := field.FromBigInt(y).ToBytesBE()
	return curve.DecodeXY(xb, yb)
}

func runScan(ctx context.Context, cfg *config.Config) error {
	sk, err := spendingKey()
	if err != nil {
		return err
	}

	indexer := indexerclient.New(cfg.IndexerURL, cfg.IndexerKey, retryConfig(cfg))
	s := scanner.New(indexer)

	notes, err := s.Scan(ctx, sk, cfg.ProgramID, nil, scanner.Options{
		ParallelBatchSize: cfg.Scanner.ParallelBatchSize,
	})
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	for _, n := range notes {
		fmt.Printf("leaf_index=%d pool_id=%x slot=%d\n", n.LeafIndex, n.PoolID, n.Slot)
	}
	stats := s.Stats()
	fmt.Printf("scanned: %d decrypted, %d cache hits, %d not ours, %d malformed\n",
		stats.Decrypted, stats.CacheHits, stats.NotOurs, stats.Malformed)
	return nil
}

func runBalance(ctx context.Context, cfg *config.Config) error {
	sk, err := spendingKey()
	if err != nil {
		return err
	}

	indexer := indexerclient.New(cfg.IndexerURL, cfg.IndexerKey, retryConfig(cfg))
	s := scanner.New(indexer)

	statusNotes, err := s.ScanWithStatus(ctx, sk, cfg.ProgramID, nil, scanner.Options{
		ParallelBatchSize: cfg.Scanner.ParallelBatchSize,
	})
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}

	unspent := scanner.Unspent(statusNotes)
	fmt.Printf("%d unspent notes\n", len(unspent))
	return nil
}

// runSpend assembles a full spend operation: it scans for an unspent
// fungible note covering the requested amount, derives a stealth
// destination for the recipient, fetches the spent leaf's merkle and
// validity proofs from the indexer, and submits the resulting
// verify-and-reserve request through the orchestrator (spec §2's
// "Data flow (spend path)").
func runSpend(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 5 {
		return fmt.Errorf("usage: shieldengine-cli spend <pool_id_hex> <mint> <amount> <recipient_x> <recipient_y>")
	}
	poolID, err := parsePoolID(args[0])
	if err != nil {
		return fmt.Errorf("spend: %w", err)
	}
	mint, err := parseFieldDecimal("mint", args[1])
	if err != nil {
		return fmt.Errorf("spend: %w", err)
	}
	amount, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("spend: amount %q is not a valid integer: %w", args[2], err)
	}
	recipientPub, err := parsePoint(args[3], args[4])
	if err != nil {
		return fmt.Errorf("spend: %w", err)
	}

	sk, err := spendingKey()
	if err != nil {
		return err
	}

	indexer := indexerclient.New(cfg.IndexerURL, cfg.IndexerKey, retryConfig(cfg))
	s := scanner.New(indexer)

	statusNotes, err := s.ScanWithStatus(ctx, sk, cfg.ProgramID, &poolID, scanner.Options{
		ParallelBatchSize: cfg.Scanner.ParallelBatchSize,
	})
	if err != nil {
		return fmt.Errorf("spend: scanning for a spendable note: %w", err)
	}

	var chosen *scanner.StatusNote
	for i := range statusNotes {
		sn := &statusNotes[i]
		if sn.Spent {
			continue
		}
		f, ok := sn.Note.(note.Fungible)
		if !ok || !f.TokenMint.Equal(mint) || f.Amount < amount {
			continue
		}
		chosen = sn
		break
	}
	if chosen == nil {
		return fmt.Errorf("spend: no unspent note with mint %s covers amount %d", args[1], amount)
	}

	sendResult, err := stealth.Send(recipientPub)
	if err != nil {
		return fmt.Errorf("spend: deriving stealth destination: %w", err)
	}

	rnd, err := note.Randomness()
	if err != nil {
		return fmt.Errorf("spend: drawing output randomness: %w", err)
	}

	out := note.Fungible{
		StealthPubX: sendResult.StealthPub.X(),
		TokenMint:   mint,
		Amount:      amount,
		Rand:        rnd,
	}
	outCommitment, err := out.Commitment()
	if err != nil {
		return fmt.Errorf("spend: computing output commitment: %w", err)
	}

	leafAddr := scanner.CommitmentAddress(cfg.ProgramID, chosen.PoolID, chosen.Commitment)
	accountProof, err := indexer.GetCompressedAccountProof(ctx, leafAddr)
	if err != nil {
		return fmt.Errorf("spend: fetching merkle proof: %w", err)
	}
	if accountProof == nil {
		return fmt.Errorf("spend: indexer has no merkle proof for the spent leaf")
	}

	validity, err := indexer.GetValidityProof(ctx, []string{leafAddr}, nil)
	if err != nil {
		return fmt.Errorf("spend: fetching validity proof: %w", err)
	}
	if validity == nil {
		return fmt.Errorf("spend: indexer returned no validity proof")
	}
	proofBytes, err := json.Marshal(validity.CompressedProof)
	if err != nil {
		return fmt.Errorf("spend: encoding proof: %w", err)
	}

	rootBytes, err := hex.DecodeString(accountProof.Root)
	if err != nil {
		return fmt.Errorf("spend: decoding merkle root: %w", err)
	}
	merkleRoot := field.ReduceBytes(rootBytes)

	req := orchestrator.VerifyReserveRequest{
		PoolID:      poolID,
		Proof:       proofBytes,
		MerkleRoot:  merkleRoot,
		Nullifiers:  []field.Element{chosen.Nullifier},
		Commitments: []field.Element{outCommitment},
	}

	store, err := storage.NewPostgresStore(ctx, postgresConfig(cfg))
	if err != nil {
		return fmt.Errorf("spend: connecting to database: %w", err)
	}
	defer store.Close()

	submitter := settlementclient.New(cfg.SettlementRPC, retryConfig(cfg))
	orc := orchestrator.New(submitter, store)

	operationID, err := orc.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("spend: %w", err)
	}

	fmt.Printf("operation_id=%s spent_nullifier=%s output_commitment=%s\n",
		operationID, chosen.Nullifier.String(), outCommitment.String())
	return nil
}

// runVote derives an action nullifier for a proposal and submits an ElGamal
// ballot cast with one of the caller's unspent notes, without consuming
// that note (spec §4.D: action nullifiers are "spent independently
// per-action... without consuming the note").
func runVote(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 6 {
		return fmt.Errorf("usage: shieldengine-cli vote <pool_id_hex> <proposal_id> <option> <power> <election_x> <election_y>")
	}
	poolID, err := parsePoolID(args[0])
	if err != nil {
		return fmt.Errorf("vote: %w", err)
	}
	proposalID := args[1]
	option, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("vote: option %q is not a valid integer: %w", args[2], err)
	}
	power, err := strconv.ParseUint(args[3], 10, 64)
	if err != nil {
		return fmt.Errorf("vote: power %q is not a valid integer: %w", args[3], err)
	}
	electionKey, err := parsePoint(args[4], args[5])
	if err != nil {
		return fmt.Errorf("vote: %w", err)
	}

	sk, err := spendingKey()
	if err != nil {
		return err
	}

	indexer := indexerclient.New(cfg.IndexerURL, cfg.IndexerKey, retryConfig(cfg))
	s := scanner.New(indexer)

	statusNotes, err := s.ScanWithStatus(ctx, sk, cfg.ProgramID, &poolID, scanner.Options{
		ParallelBatchSize: cfg.Scanner.ParallelBatchSize,
	})
	if err != nil {
		return fmt.Errorf("vote: scanning for a note to vote with: %w", err)
	}
	unspent := scanner.Unspent(statusNotes)
	if len(unspent) == 0 {
		return fmt.Errorf("vote: no unspent note in pool %s to vote with", args[0])
	}
	voteWith := unspent[0]

	nk, err := note.NullifierKey(field.FromBigInt(sk))
	if err != nil {
		return fmt.Errorf("vote: deriving nullifier key: %w", err)
	}
	actionDomain := field.ReduceBytes([]byte(proposalID))
	actionNullifier, err := note.ActionNullifier(nk, voteWith.Commitment, actionDomain)
	if err != nil {
		return fmt.Errorf("vote: deriving action nullifier: %w", err)
	}

	var randoms [3]*big.Int
	for i := range randoms {
		r, err := curve.RandomScalar()
		if err != nil {
			return fmt.Errorf("vote: drawing ballot randomness: %w", err)
		}
		randoms[i] = r
	}
	ballot, err := elgamal.NewBallot(electionKey, option, power, randoms)
	if err != nil {
		return fmt.Errorf("vote: %w", err)
	}

	settlement := settlementclient.New(cfg.SettlementRPC, retryConfig(cfg))
	if err := settlement.SubmitVote(ctx, poolID, proposalID, actionNullifier, ballot); err != nil {
		return fmt.Errorf("vote: %w", err)
	}

	fmt.Printf("action_nullifier=%s proposal=%s option=%d\n", actionNullifier.String(), proposalID, option)
	return nil
}
