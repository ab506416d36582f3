package detect

import (
	"testing"

	"github.com/pricehound/go-price-backend/internal/extract"
)

const shopPage = `<!DOCTYPE html>
<html>
<head>
<title>Gadget 42 | shop</title>
<meta property="og:title" content="Gadget 42">
<meta property="og:image" content="https://cdn.shop.example/g42.jpg">
</head>
<body>
<span class="price">1.299,00 &euro;</span>
</body>
</html>`

var defaults = Defaults{Locale: "en-US", Currency: "USD"}

func TestDetect_Success(t *testing.T) {
	attrs := Detect("https://www.Shop.example/products/g42", shopPage, DefaultCatalog(), defaults)
	if attrs == nil {
		t.Fatal("expected detection to succeed")
	}

	if attrs.Name != "Shop.example" {
		t.Fatalf("name = %q", attrs.Name)
	}
	if len(attrs.Domains) != 2 || attrs.Domains[0] != "shop.example" || attrs.Domains[1] != "www.shop.example" {
		t.Fatalf("domains = %v", attrs.Domains)
	}
	if attrs.Title.Type != extract.TypeSelector || attrs.Title.Data != "Gadget 42" {
		t.Fatalf("title match = %+v", attrs.Title)
	}
	// The comma-decimal price must come back normalized.
	if attrs.Price.Data != "1299" {
		t.Fatalf("price data = %q", attrs.Price.Data)
	}
	if attrs.Image == nil || attrs.Image.Data != "https://cdn.shop.example/g42.jpg" {
		t.Fatalf("image match = %+v", attrs.Image)
	}
	if attrs.Scraper != "http" || attrs.Locale != "en-US" || attrs.Currency != "USD" {
		t.Fatalf("defaults not applied: %+v", attrs)
	}
}

func TestDetect_PriceIsMandatory(t *testing.T) {
	// A document where only a regex-type title candidate matches and no
	// price candidate matches anywhere.
	doc := `<html><head><title>Lonely page</title></head><body><p>no offers here</p></body></html>`
	if attrs := Detect("https://shop.example/x", doc, DefaultCatalog(), defaults); attrs != nil {
		t.Fatalf("detection must fail without a price, got %+v", attrs)
	}
}

func TestDetect_ZeroPriceIsNoMatch(t *testing.T) {
	doc := `<html><head><meta property="og:title" content="Freebie"></head>
<body><span class="price">0.00</span></body></html>`
	if attrs := Detect("https://shop.example/free", doc, DefaultCatalog(), defaults); attrs != nil {
		t.Fatalf("0.0 price must be treated as no-match, got %+v", attrs)
	}
}

func TestDetect_SelectorGroupBeatsRegexGroup(t *testing.T) {
	// Catalog whose regex candidate would match the title too; declared
	// order inside the config must not override group priority.
	cat := DefaultCatalog()
	cat.Title = FieldCandidates{
		Regexes: []extract.Strategy{
			{Type: extract.TypeRegex, Value: `<title[^>]*>([^<|]+)`},
		},
		Selectors: []extract.Strategy{
			{Type: extract.TypeSelector, Value: `meta[property="og:title"]|content`},
		},
	}

	attrs := Detect("https://shop.example/g42", shopPage, cat, defaults)
	if attrs == nil {
		t.Fatal("expected detection to succeed")
	}
	if attrs.Title.Type != extract.TypeSelector {
		t.Fatalf("selector group must win over regex group, got %+v", attrs.Title)
	}
}

func TestHost(t *testing.T) {
	cases := map[string]string{
		"https://www.Example.COM/p/1": "example.com",
		"http://shop.example":         "shop.example",
		"https://www.sub.shop.example/a?b=c": "sub.shop.example",
		"://bad": "",
	}
	for in, want := range cases {
		if got := Host(in); got != want {
			t.Fatalf("Host(%q) = %q, want %q", in, got, want)
		}
	}
}
