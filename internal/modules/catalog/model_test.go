package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

func TestStageLabelIsTotal(t *testing.T) {
	cases := map[Stage]string{
		StageManufactured: "Manufactured",
		StageDistributed:  "Distributed",
		StageInPharmacy:   "In Pharmacy",
		StageSold:         "Sold",
		StageSoldOut:      "Sold out",
		Stage(9):          "Unknown",
	}
	for stage, want := range cases {
		if got := stage.Label(); got != want {
			t.Fatalf("stage %d: got %q want %q", stage, got, want)
		}
	}
}

func TestStageNext(t *testing.T) {
	next, ok := StageInPharmacy.Next()
	if !ok || next != StageSold {
		t.Fatalf("unexpected next %v %v", next, ok)
	}
	if _, ok := StageSoldOut.Next(); ok {
		t.Fatalf("sold out should be terminal")
	}
	if StageSoldOut.IsPublic() || !StageSold.IsPublic() {
		t.Fatalf("only sold out is hidden")
	}
}

func TestWeiConversion(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	eth := WeiToEther(wei)
	if !eth.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("got %s", eth)
	}
	if back := EtherToWei(eth); back.Cmp(wei) != 0 {
		t.Fatalf("round trip got %s", back)
	}
	if !WeiToEther(nil).IsZero() {
		t.Fatalf("nil wei should be zero")
	}
}

func TestResolveImageURL(t *testing.T) {
	base := "http://api.local/"
	cases := map[string]string{
		"":                        "",
		"/static/a.png":           "http://api.local/static/a.png",
		"static/a.png":            "http://api.local/static/a.png",
		"https://cdn.example/x":   "https://cdn.example/x",
		"blob:http://x/1":         "blob:http://x/1",
		"data:image/png;base64,A": "data:image/png;base64,A",
	}
	for in, want := range cases {
		if got := ResolveImageURL(base, in); got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
}

func TestFromBackend(t *testing.T) {
	d, err := FromBackend("http://api.local", pharmaapi.Drug{
		ID:    json.Number("3"),
		Name:  "Aspirin",
		Batch: "B-7",
		Price: json.Number("250000000000000000"),
		Stage: 2,
		Owner: "0x1234567890abcdef1234567890abcdef12345678",
		Image: "/img/3.png",
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != 3 || !d.Price.Equal(decimal.RequireFromString("0.25")) || d.StageLabel != "In Pharmacy" {
		t.Fatalf("unexpected drug %+v", d)
	}
	if d.Description != "Batch: B-7 | Owner: 0x1234...5678" {
		t.Fatalf("description %q", d.Description)
	}
	if d.ImageURL != "http://api.local/img/3.png" || d.Rating != DefaultRating {
		t.Fatalf("unexpected drug %+v", d)
	}

	if _, err := FromBackend("", pharmaapi.Drug{ID: json.Number("x")}); err == nil {
		t.Fatalf("expected bad id error")
	}
	for _, stage := range []int{256, -1} {
		if _, err := FromBackend("", pharmaapi.Drug{ID: json.Number("4"), Stage: stage}); !errors.Is(err, ErrInvalidDrug) {
			t.Fatalf("stage %d: expected ErrInvalidDrug, got %v", stage, err)
		}
	}
}

func TestBackendListSkipsBadRecords(t *testing.T) {
	repo := NewBackendRepository(stubBackend{
		{ID: json.Number("1"), Name: "Aspirin", Price: json.Number("1000"), Stage: 2},
		{ID: json.Number("2"), Name: "Broken price", Price: json.Number("1.5"), Stage: 2},
		{ID: json.Number("3"), Name: "Wrapped stage", Price: json.Number("1000"), Stage: 256},
		{ID: json.Number("4"), Name: "Ibuprofen", Price: json.Number("2000"), Stage: 1},
	})
	drugs, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("one bad record must not fail the listing: %v", err)
	}
	if len(drugs) != 2 || drugs[0].ID != 1 || drugs[1].ID != 4 {
		t.Fatalf("unexpected listing %+v", drugs)
	}
}

type stubBackend []pharmaapi.Drug

func (b stubBackend) BaseURL() string { return "http://api.local" }

func (b stubBackend) PublicDrugs(ctx context.Context) ([]pharmaapi.Drug, error) { return b, nil }

func TestFromSearchHit(t *testing.T) {
	d, err := FromSearchHit("", pharmaapi.Drug{ID: json.Number("5"), Name: "Vitamin C", Batch: "V1", Owner: "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"})
	if err != nil || !d.Price.IsZero() || d.Rating != 4.5 {
		t.Fatalf("unexpected hit %+v", d)
	}
	if d.Description != "Batch V1 • Owner 0xabcd...abcd" {
		t.Fatalf("description %q", d.Description)
	}
	if _, err := FromSearchHit("", pharmaapi.Drug{ID: json.Number("6"), Stage: 256}); !errors.Is(err, ErrInvalidDrug) {
		t.Fatalf("expected out of range stage to be rejected, got %v", err)
	}
}

func TestDrugInputValidate(t *testing.T) {
	if err := (DrugInput{Name: "A", Batch: "B", Price: decimal.NewFromInt(1)}).validate(); err != nil {
		t.Fatalf("unexpected %v", err)
	}
	if err := (DrugInput{Batch: "B"}).validate(); err == nil {
		t.Fatalf("expected missing name error")
	}
	if err := (DrugInput{Name: "A", Batch: "B", Price: decimal.NewFromInt(-1)}).validate(); err == nil || !strings.Contains(err.Error(), "price must not be negative") {
		t.Fatalf("expected negative price error, got %v", err)
	}
	if err := (DrugInput{Name: "A", Batch: "  "}).validate(); !errors.Is(err, ErrInvalidDrug) || !strings.Contains(err.Error(), "batch is required") {
		t.Fatalf("expected blank batch error, got %v", err)
	}
}
