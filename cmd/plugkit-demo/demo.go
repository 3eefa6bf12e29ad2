package main

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/go-plugkit/framework/container"
	"github.com/km-arc/go-plugkit/framework/discovery"
	"github.com/km-arc/go-plugkit/framework/metadata"
	"github.com/km-arc/go-plugkit/framework/module"
)

// ── Contracts ─────────────────────────────────────────────────────────────────

// Economy holds player balances.
type Economy interface {
	Balance(player string) int
	Deposit(player string, amount int)
}

// Chat broadcasts messages.
type Chat interface {
	Broadcast(msg string)
}

var (
	economyContract = container.ContractOf[Economy]()
	chatContract    = container.ContractOf[Chat]()
)

// ── Services ──────────────────────────────────────────────────────────────────

type memoryEconomy struct {
	mu       sync.Mutex
	label    string
	balances map[string]int
}

func newMemoryEconomy(label string) metadata.Constructor {
	return func() (any, error) {
		return &memoryEconomy{label: label, balances: make(map[string]int)}, nil
	}
}

func (e *memoryEconomy) Balance(player string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[player]
}

func (e *memoryEconomy) Deposit(player string, amount int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[player] += amount
}

type logChat struct{ log *zap.Logger }

func (c *logChat) Broadcast(msg string) { c.log.Info("broadcast", zap.String("msg", msg)) }

// ── Modules ───────────────────────────────────────────────────────────────────

// bankModule seeds balances through whichever economy won the contract.
type bankModule struct{ module.BaseModule }

func (bankModule) Enable(_ context.Context, c *container.Container) error {
	eco, err := container.Resolve[Economy](c, economyContract)
	if err != nil {
		return err
	}
	eco.Deposit("steve", 100)
	return nil
}

// shopModule announces itself once the bank is up.
type shopModule struct {
	module.BaseModule
	chat Chat
}

func (m *shopModule) Enable(_ context.Context, c *container.Container) error {
	chat, err := container.Resolve[Chat](c, chatContract)
	if err != nil {
		return err
	}
	eco, err := container.Resolve[Economy](c, economyContract)
	if err != nil {
		return err
	}
	m.chat = chat
	chat.Broadcast(fmt.Sprintf("shop open, steve has %d coins", eco.Balance("steve")))
	return nil
}

func (m *shopModule) Disable(context.Context) error {
	m.chat.Broadcast("shop closed")
	return nil
}

// catalog declares the demo services and modules in discovery order.
func catalog(log *zap.Logger) *discovery.Catalog {
	return discovery.NewCatalog().
		Contract(economyContract, chatContract).
		Service("legacy-economy", newMemoryEconomy("legacy"),
			discovery.WithContract(economyContract),
			discovery.WithSingleton(),
			discovery.WithAdapter("paper", "1.19", "1.21")).
		Service("economy", newMemoryEconomy("modern"),
			discovery.WithContract(economyContract),
			discovery.WithSingleton(),
			discovery.WithAdapter("paper", "1.20")).
		Service("chat", func() (any, error) { return &logChat{log: log.Named("chat")}, nil },
			discovery.WithContract(chatContract),
			discovery.WithSingleton()).
		Service("preview-chat", func() (any, error) { return &logChat{log: log.Named("preview")}, nil },
			discovery.WithFeature("beta", true)).
		Module("bank", metadata.LoadOrderCore, bankModule{}).
		Module("shop", metadata.LoadOrderDefault, &shopModule{}, "bank")
}

// factories backs PLUGKIT_MANIFEST entries.
func factories(log *zap.Logger) discovery.Factories {
	return discovery.Factories{
		Services: map[string]metadata.Constructor{
			"memory-economy": newMemoryEconomy("manifest"),
			"log-chat":       func() (any, error) { return &logChat{log: log.Named("chat")}, nil },
		},
		Modules: map[string]func() any{
			"bank": func() any { return bankModule{} },
			"shop": func() any { return &shopModule{} },
		},
	}
}
