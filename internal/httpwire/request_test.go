package httpwire

import "testing"

func TestParseRequestLine(t *testing.T) {
	raw := []byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n")
	req, err := ParseRequest(raw)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Method != "GET" || req.Path != "/index.html" || req.Proto != "HTTP/1.1" {
		t.Fatalf("got %+v", req)
	}
	if req.HasRange {
		t.Fatalf("no Range header was sent, HasRange should be false")
	}
}

func TestParseRequestRejectsMissingHeaderTerminator(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\nHost: example.com")
	if _, err := ParseRequest(raw); err == nil {
		t.Fatalf("expected an error for a request with no terminating blank line")
	}
}

func TestRangeResolveBoundaryCases(t *testing.T) {
	cases := []struct {
		name          string
		r             Range
		total         int64
		wantStart     int64
		wantEnd       int64
		wantOK        bool
	}{
		{"bytes=0-0", Range{HasStart: true, Start: 0, HasEnd: true, End: 0}, 10, 0, 0, true},
		{"bytes=-1 suffix", Range{HasEnd: true, End: -2}, 10, 9, 9, true},
		{"bytes=10-9 inverted", Range{HasStart: true, Start: 10, HasEnd: true, End: 9}, 10, 0, 0, false},
		{"bytes=0- open-ended", Range{HasStart: true, Start: 0}, 10, 0, 9, true},
		{"bytes=2-4", Range{HasStart: true, Start: 2, HasEnd: true, End: 4}, 10, 2, 4, true},
		{"out of bounds", Range{HasStart: true, Start: 0, HasEnd: true, End: 99}, 10, 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, ok := tc.r.Resolve(tc.total)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if start != tc.wantStart || end != tc.wantEnd {
				t.Fatalf("got [%d,%d], want [%d,%d]", start, end, tc.wantStart, tc.wantEnd)
			}
		})
	}
}

func TestParseRangeHeaderSuffixForm(t *testing.T) {
	req, err := ParseRequest([]byte("GET /hello.bin HTTP/1.1\r\nRange: bytes=-1\r\n\r\n"))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if !req.HasRange {
		t.Fatalf("expected HasRange to be true")
	}
	start, end, ok := req.Range.Resolve(10)
	if !ok || start != 9 || end != 9 {
		t.Fatalf("got [%d,%d] ok=%v, want [9,9] ok=true", start, end, ok)
	}
}
