package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/eigerco/tribunal/internal/court"
	"github.com/eigerco/tribunal/internal/crypto"
	"github.com/eigerco/tribunal/internal/ledger"
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/internal/randomness"
	"github.com/eigerco/tribunal/internal/store"
	"github.com/eigerco/tribunal/pkg/config"
	"github.com/eigerco/tribunal/pkg/db"
	"github.com/eigerco/tribunal/pkg/db/bolt"
	"github.com/eigerco/tribunal/pkg/db/pebble"
	"github.com/eigerco/tribunal/pkg/events"
	"github.com/eigerco/tribunal/pkg/log"
)

const seedWindow = 16

var errStoreNotEmpty = errors.New("store already holds court state")

type scenario struct {
	jurors    int
	markets   int
	appeals   int
	maxBlocks primitives.BlockNumber
}

type marketResult struct {
	id        primitives.MarketID
	winner    string
	appeals   int
	global    bool
	resolved  primitives.BlockNumber
	transfers map[primitives.TransferKind]primitives.Balance
}

type report struct {
	blocks   primitives.BlockNumber
	markets  []marketResult
	events   int
	issuance primitives.Balance
}

func (r report) print(w io.Writer) {
	fmt.Fprintf(w, "blocks: %d  events: %d  issuance: %d\n", r.blocks, r.events, r.issuance)
	for _, m := range r.markets {
		fmt.Fprintf(w, "market %d: winner=%s appeals=%d global_dispute=%t resolved_at=%d",
			m.id, m.winner, m.appeals, m.global, m.resolved)
		for kind := primitives.TransferSlash; kind <= primitives.TransferInflation; kind++ {
			if amount := m.transfers[kind]; amount > 0 {
				fmt.Fprintf(w, " %s=%d", kind, amount)
			}
		}
		fmt.Fprintln(w)
	}
}

func openStore(cfg config.Store) (db.KVStore, error) {
	switch cfg.Backend {
	case config.BackendPebble:
		return pebble.Open(cfg.Path)
	case config.BackendBolt:
		return bolt.Open(cfg.Path)
	}
	return nil, nil
}

func jurorAccount(i int) primitives.AccountID {
	return crypto.AccountFromSeed([]byte(fmt.Sprintf("tribunal/sim/juror/%d", i)))
}

func backerAccount(i int) primitives.AccountID {
	return crypto.AccountFromSeed([]byte(fmt.Sprintf("tribunal/sim/backer/%d", i)))
}

func voteSalt(juror primitives.AccountID, id primitives.MarketID, cycle uint32) crypto.Salt {
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(id))
	binary.LittleEndian.PutUint32(buf[8:], cycle)
	return crypto.Salt(crypto.HashConcat(juror[:], buf[:]))
}

// choice is the category a juror votes for. Every fourth juror dissents.
func choice(i int) primitives.VoteItem {
	category := uint16(0)
	if i%4 == 3 {
		category = 1
	}
	return primitives.OutcomeItem(primitives.CategoricalReport(category))
}

// simulate opens the configured markets at block 1, lets the drawn jurors
// vote and reveal, files appeals and resolves every court as it falls due.
func simulate(cfg config.Config, sc scenario) (report, error) {
	params, err := cfg.CourtParams()
	if err != nil {
		return report{}, err
	}

	recorder := &events.Recorder{}
	var sink events.Sink = recorder
	if cfg.Events.NATSURL != "" {
		publisher, conn, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.Prefix)
		if err != nil {
			return report{}, err
		}
		defer conn.Close()
		sink = events.Multi(recorder, publisher)
	}

	bank := ledger.New()
	seeds := randomness.NewBlockHashes(seedWindow)
	opts := []court.Option{court.WithEventSink(sink)}

	kv, err := openStore(cfg.Store)
	if err != nil {
		return report{}, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	if kv != nil {
		defer func() {
			if err := kv.Close(); err != nil {
				log.Store.Warn().Err(err).Msg("error closing store")
			}
		}()
		courtStore := store.NewCourt(kv)
		snap, err := courtStore.Load()
		if err != nil {
			return report{}, err
		}
		if len(snap.Courts) > 0 || len(snap.Participants) > 0 {
			return report{}, errStoreNotEmpty
		}
		opts = append(opts, court.WithStore(courtStore))
	}

	m, err := court.New(params, bank, seeds, opts...)
	if err != nil {
		return report{}, err
	}

	for i := 0; i < sc.jurors; i++ {
		juror := jurorAccount(i)
		stake := params.MinJurorStake * primitives.Balance(i%5+1)
		if err := bank.Deposit(juror, stake*10); err != nil {
			return report{}, err
		}
		if err := m.JoinCourt(juror, stake); err != nil {
			return report{}, fmt.Errorf("juror %d join: %w", i, err)
		}
	}
	for i := 0; i < sc.markets; i++ {
		if err := bank.Deposit(backerAccount(i), params.AppealBondFor(sc.appeals+1)*primitives.Balance(sc.appeals+1)); err != nil {
			return report{}, err
		}
	}

	results := make(map[primitives.MarketID]*marketResult, sc.markets)
	var order []primitives.MarketID
	var block primitives.BlockNumber
	for block = 1; block <= sc.maxBlocks; block++ {
		var parent [8]byte
		binary.LittleEndian.PutUint64(parent[:], uint64(block-1))
		seeds.Record(block-1, crypto.HashData(parent[:]))

		tick, err := m.OnInitialize(block)
		if err != nil {
			return report{}, err
		}
		if err := bank.Apply(tick.Inflation); err != nil {
			return report{}, fmt.Errorf("apply inflation: %w", err)
		}

		if block == 1 {
			for i := 0; i < sc.markets; i++ {
				id := primitives.MarketID(i + 1)
				market := primitives.Market{
					ID:       id,
					Type:     primitives.NewCategoricalMarket(3),
					Report:   primitives.CategoricalReport(0),
					ItemType: primitives.VoteItemOutcome,
				}
				if _, err := m.OnDispute(market, block); err != nil {
					return report{}, fmt.Errorf("dispute market %d: %w", id, err)
				}
				results[id] = &marketResult{id: id, transfers: make(map[primitives.TransferKind]primitives.Balance)}
				order = append(order, id)
			}
		}

		for i, id := range order {
			res := results[id]
			if res.resolved > 0 {
				continue
			}
			if err := step(m, id, block, backerAccount(i), sc.appeals, res); err != nil {
				return report{}, err
			}
		}

		for _, id := range tick.Due {
			if err := resolve(m, bank, id, block, results[id]); err != nil {
				return report{}, err
			}
		}

		if len(order) > 0 && allResolved(results) {
			break
		}
	}

	out := report{blocks: block, events: len(recorder.Events()), issuance: bank.TotalIssuance()}
	for _, id := range order {
		out.markets = append(out.markets, *results[id])
	}
	return out, nil
}

// step drives the jurors and the backer of one open court at block.
func step(m *court.Module, id primitives.MarketID, block primitives.BlockNumber, backer primitives.AccountID, appeals int, res *marketResult) error {
	c, err := m.Court(id)
	if err != nil {
		return err
	}
	if c.Status != court.StatusOpen {
		return nil
	}

	switch block {
	case c.RoundEnds.PreVote:
		for i, d := range c.Draws {
			commitment, err := crypto.Commitment(d.Juror, choice(i), voteSalt(d.Juror, id, c.Cycle))
			if err != nil {
				return err
			}
			if err := m.Vote(id, d.Juror, commitment); err != nil {
				return fmt.Errorf("market %d vote: %w", id, err)
			}
		}
	case c.RoundEnds.Vote + 1:
		for i, d := range c.Draws {
			if err := m.RevealVote(id, d.Juror, choice(i), voteSalt(d.Juror, id, c.Cycle)); err != nil {
				return fmt.Errorf("market %d reveal: %w", id, err)
			}
		}
	case c.RoundEnds.Aggregation + 1:
		if res.appeals >= appeals {
			return nil
		}
		err := m.Appeal(id, backer)
		switch {
		case errors.Is(err, court.ErrMaxAppealsReached):
		case err != nil:
			return fmt.Errorf("market %d appeal: %w", id, err)
		default:
			res.appeals++
		}
	}
	return nil
}

func resolve(m *court.Module, bank *ledger.Ledger, id primitives.MarketID, block primitives.BlockNumber, res *marketResult) error {
	winner, err := m.OnResolution(id)
	if errors.Is(err, court.ErrCourtFailed) {
		items, err := m.OnGlobalDispute(id)
		if err != nil {
			return err
		}
		winner = items[0].Item
		if err := m.AcceptGlobalDisputeWinner(id, winner); err != nil {
			return err
		}
		if err := m.ReassignCourtStakes(id); err != nil {
			return err
		}
		res.global = true
	} else if err != nil {
		return fmt.Errorf("resolve market %d: %w", id, err)
	}

	transfers, err := m.Exchange(id)
	if err != nil {
		return err
	}
	if err := bank.Apply(transfers); err != nil {
		return fmt.Errorf("apply transfers of market %d: %w", id, err)
	}
	for _, tr := range transfers {
		res.transfers[tr.Kind] += tr.Amount
	}
	if _, err := m.Clear(id, 0); err != nil {
		return err
	}
	res.winner = winner.String()
	res.resolved = block
	log.Root.Info().Uint64("market", uint64(id)).Str("winner", res.winner).Int("transfers", len(transfers)).
		Msg("market resolved")
	return nil
}

func allResolved(results map[primitives.MarketID]*marketResult) bool {
	for _, r := range results {
		if r.resolved == 0 {
			return false
		}
	}
	return true
}
