// Package seeds provisions accounts from a YAML file.
package seeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codedrop-io/codedrop/internal/domain/account"
	"github.com/codedrop-io/codedrop/internal/shared/utils"
)

// AccountSeed is one account entry in a seed file.
type AccountSeed struct {
	Username       string `yaml:"username" validate:"required,max=100"`
	DisplayName    string `yaml:"display_name" validate:"max=100"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
	Notify         bool   `yaml:"notify"`
	Active         *bool  `yaml:"active"`
}

// AccountSeedFile is the document layout:
//
//	accounts:
//	  - username: alice
//	    display_name: Alice
//	    telegram_chat_id: 123456
//	    notify: true
type AccountSeedFile struct {
	Accounts []AccountSeed `yaml:"accounts" validate:"dive"`
}

// SeedReport counts what a seed run changed.
type SeedReport struct {
	Created int
	Updated int
}

// ParseAccountSeeds decodes and validates a seed document. Unknown keys are
// rejected so a typo does not silently drop a setting.
func ParseAccountSeeds(r io.Reader) (*AccountSeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file AccountSeedFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode seed file: %w", err)
	}
	if err := utils.ValidateStruct(&file); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(file.Accounts))
	for _, s := range file.Accounts {
		if _, dup := seen[s.Username]; dup {
			return nil, fmt.Errorf("username %q appears more than once", s.Username)
		}
		seen[s.Username] = struct{}{}
	}
	return &file, nil
}

// SeedAccounts creates missing accounts and brings existing ones in line
// with the file. Accounts absent from the file are left alone.
func SeedAccounts(ctx context.Context, repo account.Repository, file *AccountSeedFile, now time.Time) (SeedReport, error) {
	var report SeedReport

	for _, s := range file.Accounts {
		existing, err := repo.FindByUsername(ctx, s.Username)
		switch {
		case errors.Is(err, account.ErrAccountNotFound):
			a, err := account.NewAccount(s.Username, s.DisplayName, now)
			if err != nil {
				return report, err
			}
			if err := repo.Create(ctx, a); err != nil {
				return report, fmt.Errorf("failed to create %q: %w", s.Username, err)
			}
			// Create does not round-trip false defaults, so settings are
			// applied as an update.
			apply(a, s, now)
			if err := repo.Update(ctx, a); err != nil {
				return report, fmt.Errorf("failed to configure %q: %w", s.Username, err)
			}
			report.Created++

		case err != nil:
			return report, fmt.Errorf("failed to look up %q: %w", s.Username, err)

		default:
			apply(existing, s, now)
			if err := repo.Update(ctx, existing); err != nil {
				return report, fmt.Errorf("failed to update %q: %w", s.Username, err)
			}
			report.Updated++
		}
	}
	return report, nil
}

func apply(a *account.Account, s AccountSeed, now time.Time) {
	a.Rename(s.DisplayName, now)
	a.LinkTelegram(s.TelegramChatID, s.Notify, now)
	if s.Active == nil || *s.Active {
		a.Enable(now)
	} else {
		a.Disable(now)
	}
}
