// Package snapshot freezes agreement content into a canonical, hashable byte
// form. Two callers submitting the same semantic content get byte-identical
// snapshots: strings are NFC-normalised and trimmed, metadata keys are sorted,
// and money amounts are carried as normalised decimal strings.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	dErrors "pactline/pkg/domain-errors"
)

// FormatVersion is written into every snapshot so the encoding can evolve
// without silently changing old hashes.
const FormatVersion = 1

const hashPrefix = "sha256:"

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	amountPattern   = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// Party is one side of the agreement.
type Party struct {
	Role        string `json:"role"`
	Name        string `json:"name"`
	IdentityRef string `json:"identity_ref,omitempty"`
}

// Term is a single clause. Terms keep caller order.
type Term struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Money is an amount in minor-unit-free decimal notation, e.g. "1500.25".
type Money struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// Content is the structured schema the template store hands over.
type Content struct {
	Title   string  `json:"title"`
	Parties []Party `json:"parties"`
	Terms   []Term  `json:"terms"`
	Amount  *Money  `json:"amount,omitempty"`
	Body    string  `json:"body,omitempty"`
}

// Snapshot is the frozen representation of agreement content.
type Snapshot struct {
	Bytes   []byte
	Hash    string
	Version int
}

type document struct {
	Version  int               `json:"v"`
	Content  Content           `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Take validates content and returns its canonical bytes and hash. It has no
// side effects; the caller persists the result.
func Take(content Content, metadata map[string]string) (Snapshot, error) {
	c, err := canonicalContent(content)
	if err != nil {
		return Snapshot{}, err
	}

	doc := document{Version: FormatVersion, Content: c}
	if len(metadata) > 0 {
		doc.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			k = clean(k)
			if k == "" {
				return Snapshot{}, dErrors.New(dErrors.CodeContentInvalid, "metadata keys must not be empty")
			}
			if _, dup := doc.Metadata[k]; dup {
				return Snapshot{}, dErrors.New(dErrors.CodeContentInvalid, "metadata key "+strconv.Quote(k)+" is given more than once")
			}
			doc.Metadata[k] = clean(v)
		}
	}

	// encoding/json writes map keys in sorted order, which is what makes the
	// metadata section deterministic.
	raw, err := json.Marshal(doc)
	if err != nil {
		return Snapshot{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode snapshot")
	}
	return Snapshot{Bytes: raw, Hash: Sum(raw), Version: FormatVersion}, nil
}

// Sum returns the prefixed SHA-256 digest of b.
func Sum(b []byte) string {
	h := sha256.Sum256(b)
	return hashPrefix + hex.EncodeToString(h[:])
}

// Verify reports whether the stored hash still matches the stored bytes.
func Verify(s Snapshot) bool {
	return len(s.Bytes) > 0 && Sum(s.Bytes) == s.Hash
}

// Decode returns the content captured in a snapshot.
func Decode(s Snapshot) (Content, map[string]string, error) {
	var doc document
	if err := json.Unmarshal(s.Bytes, &doc); err != nil {
		return Content{}, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode snapshot")
	}
	return doc.Content, doc.Metadata, nil
}

func canonicalContent(in Content) (Content, error) {
	out := Content{
		Title: clean(in.Title),
		Body:  norm.NFC.String(strings.TrimSpace(in.Body)),
	}

	if len(in.Parties) == 0 {
		return Content{}, dErrors.New(dErrors.CodeContentInvalid, "at least one party is required")
	}
	for _, p := range in.Parties {
		party := Party{Role: clean(p.Role), Name: clean(p.Name), IdentityRef: strings.TrimSpace(p.IdentityRef)}
		if party.Name == "" {
			return Content{}, dErrors.New(dErrors.CodeContentInvalid, "party name is required")
		}
		if party.Role == "" {
			return Content{}, dErrors.New(dErrors.CodeContentInvalid, "party role is required")
		}
		out.Parties = append(out.Parties, party)
	}

	if len(in.Terms) == 0 {
		return Content{}, dErrors.New(dErrors.CodeContentInvalid, "at least one term is required")
	}
	for _, t := range in.Terms {
		term := Term{Key: clean(t.Key), Text: clean(t.Text)}
		if term.Text == "" {
			return Content{}, dErrors.New(dErrors.CodeContentInvalid, "term text is required")
		}
		out.Terms = append(out.Terms, term)
	}

	if in.Amount != nil {
		m, err := canonicalMoney(*in.Amount)
		if err != nil {
			return Content{}, err
		}
		out.Amount = &m
	}
	return out, nil
}

func canonicalMoney(m Money) (Money, error) {
	currency := strings.ToUpper(strings.TrimSpace(m.Currency))
	amount := strings.TrimSpace(m.Amount)
	if currency == "" || amount == "" {
		return Money{}, dErrors.New(dErrors.CodeContentInvalid, "amount requires both currency and value")
	}
	if !currencyPattern.MatchString(currency) {
		return Money{}, dErrors.New(dErrors.CodeContentInvalid, "currency must be an ISO 4217 code")
	}
	if !amountPattern.MatchString(amount) {
		return Money{}, dErrors.New(dErrors.CodeContentInvalid, "amount must be a non-negative decimal")
	}
	return Money{Currency: currency, Amount: normaliseDecimal(amount)}, nil
}

// normaliseDecimal strips redundant zeros so "0100.50" and "100.5" hash alike.
func normaliseDecimal(s string) string {
	whole, frac, _ := strings.Cut(s, ".")
	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func clean(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
