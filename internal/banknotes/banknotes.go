// Package banknotes deals rounds of banknotes from a provably-fair float stream.
package banknotes

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/MJE43/cash-count-desktop/internal/engine"
)

// RoundSize is the number of banknotes shown per round.
const RoundSize = 10

// Denominations are the face values a banknote can have, in ascending order.
var Denominations = []int{10, 50, 100, 200, 500, 1000, 2000}

// Seeds key the float stream. Server is ASCII; it is never hex-decoded.
type Seeds struct {
	Server string `json:"serverSeed"`
	Client string `json:"clientSeed"`
}

// Hand is one dealt round plus what is needed to verify it later.
type Hand struct {
	Notes          []int  `json:"notes"`
	Nonce          uint64 `json:"nonce"`
	ServerSeedHash string `json:"serverSeedHash"`
	ClientSeed     string `json:"clientSeed"`
}

// FromFloat maps a float in [0, 1) onto a denomination.
func FromFloat(f float64) int {
	i := int(math.Floor(f * float64(len(Denominations))))
	if i < 0 {
		i = 0
	}
	if i >= len(Denominations) {
		i = len(Denominations) - 1
	}
	return Denominations[i]
}

// Deal draws count denominations with replacement. Equal inputs give equal hands.
func Deal(seeds Seeds, nonce uint64, count int) []int {
	floats := engine.Floats(seeds.Server, seeds.Client, nonce, count)
	notes := make([]int, len(floats))
	for i, f := range floats {
		notes[i] = FromFloat(f)
	}
	return notes
}

// Sum adds up face values.
func Sum(notes []int) int {
	total := 0
	for _, n := range notes {
		total += n
	}
	return total
}

// AssetKey returns the image asset id for a denomination (identity mapping).
func AssetKey(value int) string {
	return strconv.Itoa(value)
}

// IsDenomination reports whether value is a known face value.
func IsDenomination(value int) bool {
	for _, d := range Denominations {
		if d == value {
			return true
		}
	}
	return false
}

// HashServerSeed returns the hex SHA-256 commitment shown before a seed is revealed.
func HashServerSeed(server string) string {
	h := sha256.Sum256([]byte(server))
	return hex.EncodeToString(h[:])
}

// Dealer owns the session seeds and the per-round nonce.
type Dealer struct {
	mu    sync.Mutex
	seeds Seeds
	nonce uint64
}

// NewDealer starts a dealer with a fresh server seed. An empty clientSeed is randomized.
func NewDealer(clientSeed string) (*Dealer, error) {
	seeds, err := newSeeds(clientSeed)
	if err != nil {
		return nil, err
	}
	return &Dealer{seeds: seeds}, nil
}

// NewDealerWithSeeds is used for replays and tests.
func NewDealerWithSeeds(seeds Seeds) *Dealer {
	return &Dealer{seeds: seeds}
}

// Deal advances the nonce and deals count notes.
func (d *Dealer) Deal(count int) Hand {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nonce++
	return Hand{
		Notes:          Deal(d.seeds, d.nonce, count),
		Nonce:          d.nonce,
		ServerSeedHash: HashServerSeed(d.seeds.Server),
		ClientSeed:     d.seeds.Client,
	}
}

// Commitment describes the active seeds without revealing the server seed.
type Commitment struct {
	ServerSeedHash string `json:"serverSeedHash"`
	ClientSeed     string `json:"clientSeed"`
	Nonce          uint64 `json:"nonce"`
}

// Commitment returns the current seed commitment and the last used nonce.
func (d *Dealer) Commitment() Commitment {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Commitment{
		ServerSeedHash: HashServerSeed(d.seeds.Server),
		ClientSeed:     d.seeds.Client,
		Nonce:          d.nonce,
	}
}

// Revealed is a retired seed pair, safe to show once it is no longer used.
type Revealed struct {
	Seeds     Seeds  `json:"seeds"`
	LastNonce uint64 `json:"lastNonce"`
}

// Rotate retires the current seeds and starts a new pair with the nonce reset.
func (d *Dealer) Rotate(clientSeed string) (Revealed, error) {
	next, err := newSeeds(clientSeed)
	if err != nil {
		return Revealed{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	old := Revealed{Seeds: d.seeds, LastNonce: d.nonce}
	d.seeds = next
	d.nonce = 0
	return old, nil
}

// Verify re-deals a past round from revealed seeds.
func Verify(seeds Seeds, nonce uint64) ([]int, error) {
	if strings.TrimSpace(seeds.Server) == "" {
		return nil, errors.New("server seed is required")
	}
	if nonce == 0 {
		return nil, errors.New("nonce must be >= 1")
	}
	return Deal(seeds, nonce, RoundSize), nil
}

func newSeeds(clientSeed string) (Seeds, error) {
	server, err := randomHex(32)
	if err != nil {
		return Seeds{}, err
	}
	clientSeed = strings.TrimSpace(clientSeed)
	if clientSeed == "" {
		clientSeed, err = randomHex(8)
		if err != nil {
			return Seeds{}, err
		}
	}
	return Seeds{Server: server, Client: clientSeed}, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
