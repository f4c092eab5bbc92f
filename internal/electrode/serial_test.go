package electrode

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSerialSourceLatestFrame(t *testing.T) {
	input := strings.Join([]string{
		"# capsense stream v1",
		"100,200,300",
		"",
		"110 210 310",
		"garbage",
		"1,2",
		"120;220;320",
	}, "\n")
	src := NewSerialSource(strings.NewReader(input), 3)

	if err := src.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, want := range []int16{120, 220, 320} {
		ch, err := src.Channel(i)
		if err != nil {
			t.Fatalf("channel %d: %v", i, err)
		}
		got, err := ch.Read()
		if err != nil {
			t.Fatalf("channel %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("channel %d: expected %d, got %d", i, want, got)
		}
	}

	frames, dropped := src.Stats()
	if frames != 3 || dropped != 2 {
		t.Errorf("expected 3 frames and 2 dropped, got %d/%d", frames, dropped)
	}
}

func TestSerialChannelNoData(t *testing.T) {
	src := NewSerialSource(strings.NewReader(""), 1)
	ch, err := src.Channel(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ch.Read(); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestSerialChannelOutOfRange(t *testing.T) {
	src := NewSerialSource(strings.NewReader(""), 2)
	if _, err := src.Channel(2); err == nil {
		t.Error("expected error for column 2")
	}
	if _, err := src.Channel(-1); err == nil {
		t.Error("expected error for column -1")
	}
}

func TestSerialSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewSerialSource(strings.NewReader("1\n2\n"), 1)
	if err := src.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		line    string
		columns int
		want    []int16
		wantErr bool
	}{
		{"1,2,3", 3, []int16{1, 2, 3}, false},
		{"-5\t7", 2, []int16{-5, 7}, false},
		{"1,,2", 2, []int16{1, 2}, false},
		{"40000", 1, nil, true},
		{"1,x", 2, nil, true},
		{"1,2,3", 2, nil, true},
	}
	for _, tt := range tests {
		got, err := parseFrame(tt.line, tt.columns)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseFrame(%q): error = %v, wantErr %v", tt.line, err, tt.wantErr)
			continue
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("parseFrame(%q) = %v, want %v", tt.line, got, tt.want)
				break
			}
		}
	}
}
