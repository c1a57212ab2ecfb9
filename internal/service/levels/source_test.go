package levels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/service/upstream"
)

func TestDecodeCanonicalizesShapes(t *testing.T) {
	body := []byte(`{"levels":[
		{"id":"z1","lo":600,"hi":602,"strength":95,"timeframe":"1h"},
		{"id":"z2","low":590,"high":588,"strength":140,"tf":"4h","kind":"negotiated"},
		{"id":"z3","priceRange":[610.5,609],"side":"resistance","note":"keep"},
		{"id":"z4","priceRange":{"high":580,"low":579}},
		{"id":"bad","lo":"x"}
	],"meta":{"current_price_anchor":601.2}}`)

	zs, anchor, err := Decode(body, models.KindInstitutional)
	if err != nil {
		t.Fatal(err)
	}
	if anchor == nil || *anchor != 601.2 {
		t.Fatalf("anchor = %v", anchor)
	}
	if len(zs) != 4 {
		t.Fatalf("expected 4 zones, got %d", len(zs))
	}
	if zs[1].Lo != 588 || zs[1].Hi != 590 || zs[1].Strength != 100 || zs[1].Kind != models.KindNegotiated || zs[1].Timeframe != "4h" {
		t.Fatalf("z2 not canonical: %+v", zs[1])
	}
	if zs[2].Lo != 609 || zs[2].Hi != 610.5 || zs[2].Side != models.SideSupply || zs[2].Extra["note"] != "keep" {
		t.Fatalf("z3 not canonical: %+v", zs[2])
	}
	if zs[3].Lo != 579 || zs[3].Hi != 580 {
		t.Fatalf("z4 not canonical: %+v", zs[3])
	}
}

func TestFetchZonesDegradesWithoutShelves(t *testing.T) {
	levels := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "SPY" {
			t.Errorf("symbol not forwarded: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"levels":[{"id":"a","lo":1,"hi":2}],"meta":{}}`))
	}))
	defer levels.Close()
	shelves := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer shelves.Close()

	src := NewSource(upstream.NewBase("levels", levels.URL), upstream.NewBase("shelves", shelves.URL), nil)
	feed, err := src.FetchZones(context.Background(), "spy")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(feed.Institutional) != 1 || len(feed.Shelves) != 0 || feed.PriceAnchor != nil {
		t.Fatalf("unexpected feed %+v", feed)
	}
}
