package domain

import (
	"fmt"
	"strings"
)

// Tier is an ordered vendor classification. The zero value sorts below every named tier.
type Tier int

const (
	TierUnknown Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
)

// MaxTier is the highest named tier.
const MaxTier = TierPlatinum

var tierNames = map[Tier]string{
	TierUnknown:  "",
	TierBronze:   "bronze",
	TierSilver:   "silver",
	TierGold:     "gold",
	TierPlatinum: "platinum",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

func (t Tier) Valid() bool {
	return t >= TierBronze && t <= MaxTier
}

func ParseTier(s string) (Tier, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if norm == "" {
		return TierUnknown, nil
	}
	for tier, name := range tierNames {
		if name == norm {
			return tier, nil
		}
	}
	return TierUnknown, fmt.Errorf("unknown vendor tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
