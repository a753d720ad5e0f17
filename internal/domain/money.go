package domain

import (
	"fmt"
	"strings"
)

// Prices are denominated in copper, the smallest currency unit.
// 100 copper = 1 silver, 100 silver = 1 gold, 100 gold = 1 platinum.
const (
	Copper   int64 = 1
	Silver   int64 = 100
	Gold     int64 = 10000
	Platinum int64 = 1000000
)

// ParseCoins parses a coin-denominated amount such as "1p2g3s4c"
// (1 platinum, 2 gold, 3 silver, 4 copper) into copper units. Denominations
// may appear in any order; each may appear at most once. Returns an error
// for empty input, unknown suffixes, repeated denominations, or trailing
// digits with no suffix.
func ParseCoins(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	units := map[byte]int64{'p': Platinum, 'g': Gold, 's': Silver, 'c': Copper}
	seen := map[byte]bool{}

	var total int64
	var digits strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch >= '0' && ch <= '9' {
			digits.WriteByte(ch)
			continue
		}
		unit, ok := units[ch]
		if !ok {
			return 0, fmt.Errorf("unknown denomination %q", ch)
		}
		if seen[ch] {
			return 0, fmt.Errorf("denomination %q given twice", ch)
		}
		if digits.Len() == 0 {
			return 0, fmt.Errorf("denomination %q has no amount", ch)
		}
		seen[ch] = true

		var n int64
		for _, d := range digits.String() {
			n = n*10 + int64(d-'0')
			if n > 1000000000 {
				return 0, fmt.Errorf("amount too large")
			}
		}
		digits.Reset()
		total += n * unit
	}
	if digits.Len() != 0 {
		return 0, fmt.Errorf("trailing digits without a denomination")
	}
	return total, nil
}

// SplitCoins decomposes a copper amount into platinum, gold, silver, and
// copper coin counts. Negative amounts split as zero.
func SplitCoins(amount int64) (p, g, s, c int64) {
	if amount <= 0 {
		return 0, 0, 0, 0
	}
	p = amount / Platinum
	amount %= Platinum
	g = amount / Gold
	amount %= Gold
	s = amount / Silver
	c = amount % Silver
	return p, g, s, c
}

// FormatCoins renders a copper amount in coin notation, omitting zero
// denominations: 1020304 → "1p2g3s4c". Zero and negative amounts render
// as "0c".
func FormatCoins(amount int64) string {
	p, g, s, c := SplitCoins(amount)
	var b strings.Builder
	if p > 0 {
		fmt.Fprintf(&b, "%dp", p)
	}
	if g > 0 {
		fmt.Fprintf(&b, "%dg", g)
	}
	if s > 0 {
		fmt.Fprintf(&b, "%ds", s)
	}
	if c > 0 {
		fmt.Fprintf(&b, "%dc", c)
	}
	if b.Len() == 0 {
		return "0c"
	}
	return b.String()
}

// CoinItems materializes a copper amount as coin item stacks, largest
// denomination first. Used to pay out escrow withdrawals as physical coins.
func CoinItems(amount int64) []Item {
	p, g, s, c := SplitCoins(amount)
	var items []Item
	if p > 0 {
		items = append(items, Item{TypeID: PlatinumCoinID, Stack: int32(p)})
	}
	if g > 0 {
		items = append(items, Item{TypeID: GoldCoinID, Stack: int32(g)})
	}
	if s > 0 {
		items = append(items, Item{TypeID: SilverCoinID, Stack: int32(s)})
	}
	if c > 0 {
		items = append(items, Item{TypeID: CopperCoinID, Stack: int32(c)})
	}
	return items
}
