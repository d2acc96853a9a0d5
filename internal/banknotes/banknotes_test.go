package banknotes

import "testing"

func TestFromFloat(t *testing.T) {
	tests := []struct {
		f    float64
		want int
	}{
		{0.0, 10},
		{0.14, 10},
		{0.15, 50},
		{0.5, 200},
		{0.86, 2000},
		{0.9999999, 2000},
		{1.0, 2000},
		{-0.1, 10},
	}
	for _, tt := range tests {
		if got := FromFloat(tt.f); got != tt.want {
			t.Errorf("FromFloat(%v) = %d, want %d", tt.f, got, tt.want)
		}
	}
}

func TestDealDeterministic(t *testing.T) {
	seeds := Seeds{Server: "server", Client: "client"}
	a := Deal(seeds, 1, RoundSize)
	b := Deal(seeds, 1, RoundSize)

	if len(a) != RoundSize {
		t.Fatalf("expected %d notes, got %d", RoundSize, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("note %d differs: %d vs %d", i, a[i], b[i])
		}
		if !IsDenomination(a[i]) {
			t.Errorf("note %d is not a denomination: %d", i, a[i])
		}
	}
}

func TestDealCoversDenominations(t *testing.T) {
	seeds := Seeds{Server: "coverage", Client: "client"}
	seen := map[int]bool{}
	for nonce := uint64(1); nonce <= 200; nonce++ {
		for _, n := range Deal(seeds, nonce, RoundSize) {
			seen[n] = true
		}
	}
	for _, d := range Denominations {
		if !seen[d] {
			t.Errorf("denomination %d never dealt in 2000 draws", d)
		}
	}
}

func TestSum(t *testing.T) {
	if got := Sum([]int{10, 50, 100}); got != 160 {
		t.Errorf("Sum = %d, want 160", got)
	}
	if got := Sum(nil); got != 0 {
		t.Errorf("Sum(nil) = %d, want 0", got)
	}
}

func TestAssetKey(t *testing.T) {
	for _, d := range Denominations {
		key := AssetKey(d)
		if key == "" {
			t.Errorf("empty asset key for %d", d)
		}
	}
	if AssetKey(500) != "500" {
		t.Errorf("expected identity asset key, got %q", AssetKey(500))
	}
}

func TestDealerNonceAndVerify(t *testing.T) {
	seeds := Seeds{Server: "server", Client: "client"}
	d := NewDealerWithSeeds(seeds)

	first := d.Deal(RoundSize)
	second := d.Deal(RoundSize)
	if first.Nonce != 1 || second.Nonce != 2 {
		t.Fatalf("expected nonces 1 and 2, got %d and %d", first.Nonce, second.Nonce)
	}
	if first.ServerSeedHash != HashServerSeed("server") {
		t.Errorf("hand carries wrong seed hash")
	}

	replayed, err := Verify(seeds, second.Nonce)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	for i := range replayed {
		if replayed[i] != second.Notes[i] {
			t.Fatalf("replayed note %d = %d, dealt %d", i, replayed[i], second.Notes[i])
		}
	}
}

func TestVerifyRejectsBadInput(t *testing.T) {
	if _, err := Verify(Seeds{Client: "c"}, 1); err == nil {
		t.Error("expected error for empty server seed")
	}
	if _, err := Verify(Seeds{Server: "s", Client: "c"}, 0); err == nil {
		t.Error("expected error for zero nonce")
	}
}

func TestDealerRotate(t *testing.T) {
	d, err := NewDealer("")
	if err != nil {
		t.Fatalf("NewDealer: %v", err)
	}
	before := d.Commitment()
	if before.ClientSeed == "" {
		t.Fatal("expected random client seed")
	}
	hand := d.Deal(RoundSize)

	revealed, err := d.Rotate("mine")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if HashServerSeed(revealed.Seeds.Server) != before.ServerSeedHash {
		t.Error("revealed seed does not match previous commitment")
	}
	if revealed.LastNonce != hand.Nonce {
		t.Errorf("expected last nonce %d, got %d", hand.Nonce, revealed.LastNonce)
	}

	after := d.Commitment()
	if after.ClientSeed != "mine" || after.Nonce != 0 {
		t.Errorf("unexpected commitment after rotate: %+v", after)
	}
	if after.ServerSeedHash == before.ServerSeedHash {
		t.Error("server seed was not rotated")
	}
}
