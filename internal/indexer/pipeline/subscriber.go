package pipeline

import (
	"context"
	"errors"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

// logSubscriber pulls Attested/Revoked logs from the registry in
// chunked FilterLogs calls and feeds them downstream. Progress is
// persisted as a per-(chain, registry) cursor so a restart resumes
// where the previous run stopped.
type logSubscriber struct {
	cfg    Config
	repo   Repo
	client EthClient
	topics []common.Hash
	logger *log.Logger
}

func newLogSubscriber(cfg Config, repo Repo, client EthClient, topics []common.Hash, logger *log.Logger) *logSubscriber {
	return &logSubscriber{
		cfg:    cfg,
		repo:   repo,
		client: client,
		topics: topics,
		logger: logger,
	}
}

func (s *logSubscriber) stream(ctx context.Context, out chan<- types.Log) error {
	registryAddr := s.cfg.Registry.Hex()
	cursor, err := s.repo.GetLogCursor(ctx, s.cfg.ChainID, registryAddr)
	if err != nil {
		return err
	}
	var lastProcessed uint64
	var lastTxHash string
	var lastLogIndex uint
	if cursor != nil {
		lastProcessed = cursor.LastBlock
		lastTxHash = cursor.LastTxHash
		lastLogIndex = cursor.LastLogIndex
		s.logf("resuming from cursor: block=%d tx=%s logIndex=%d", lastProcessed, lastTxHash, lastLogIndex)
	}
	startBlock := s.cfg.DeploymentBlock
	if lastProcessed > 0 && lastProcessed >= startBlock {
		startBlock = lastProcessed + 1
	}

	chunkSize := s.cfg.chunkSize()
	confirmations := s.cfg.confirmations()
	pollInterval := s.cfg.pollInterval()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		head, err := s.client.HeaderByNumber(ctx, nil)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.logf("head fetch failed, retrying: %v", err)
			if err := s.pause(ctx, s.cfg.resubscribeDelay()); err != nil {
				return err
			}
			continue
		}

		// Only blocks with enough confirmations on top are read, so a
		// shallow reorg cannot feed the mirror logs it must unwind.
		var safeHead uint64
		if head.Number != nil {
			headNumber := head.Number.Uint64()
			if headNumber > confirmations {
				safeHead = headNumber - confirmations
			}
		}
		if safeHead < startBlock {
			s.logf("caught up, next=%d safeHead=%d", startBlock, safeHead)
			if err := s.pause(ctx, pollInterval); err != nil {
				return err
			}
			continue
		}

		from := startBlock
		for from <= safeHead {
			to := from + chunkSize - 1
			if to > safeHead {
				to = safeHead
			}

			logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(from),
				ToBlock:   new(big.Int).SetUint64(to),
				Addresses: []common.Address{s.cfg.Registry},
				Topics:    [][]common.Hash{s.topics},
			})
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logf("filter %d-%d failed, retrying: %v", from, to, err)
				if err := s.pause(ctx, s.cfg.resubscribeDelay()); err != nil {
					return err
				}
				break
			}

			matched := 0
			for _, lg := range logs {
				if len(lg.Topics) == 0 || !s.handlesTopic(lg.Topics[0]) {
					continue
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case out <- lg:
				}
				matched++
				lastTxHash = lg.TxHash.Hex()
				lastLogIndex = uint(lg.Index)
				lastProcessed = lg.BlockNumber
			}
			if matched > 0 {
				s.logf("mirrored %d registry logs in blocks %d-%d", matched, from, to)
			}

			// The cursor advances over empty chunks too, otherwise a
			// quiet registry would be rescanned from its last log on
			// every restart.
			if err := s.repo.UpsertLogCursor(ctx, &store.LogCursor{
				ChainID:      s.cfg.ChainID,
				Address:      registryAddr,
				LastBlock:    to,
				LastTxHash:   lastTxHash,
				LastLogIndex: lastLogIndex,
			}); err != nil {
				return err
			}
			lastProcessed = to

			from = to + 1
			startBlock = from
		}

		if err := s.pause(ctx, pollInterval); err != nil {
			return err
		}
	}
}

// pause sleeps for d unless the context ends first.
func (s *logSubscriber) pause(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (s *logSubscriber) handlesTopic(topic common.Hash) bool {
	for _, t := range s.topics {
		if t == topic {
			return true
		}
	}
	return false
}

func (s *logSubscriber) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
