package main

import "testing"

func TestParseYearRange(t *testing.T) {
	tests := []struct {
		raw      string
		wantFrom int
		wantTo   int
		wantErr  bool
	}{
		{"2022", 2022, 2022, false},
		{" 2022 ", 2022, 2022, false},
		{"2020:2023", 2020, 2023, false},
		{"2020:", 2020, 0, false},
		{":2023", 0, 2023, false},
		{":", 0, 0, false},
		{"", 0, 0, false},
		{"twenty", 0, 0, true},
		{"x:2023", 0, 0, true},
		{"2020:y", 0, 0, true},
		{"2023:2020", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			from, to, err := parseYearRange(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseYearRange(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if from != tt.wantFrom || to != tt.wantTo {
				t.Errorf("parseYearRange(%q) = %d, %d; want %d, %d", tt.raw, from, to, tt.wantFrom, tt.wantTo)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer title here", 10, "a longe..."},
		{"车联网中的协同数据调度", 6, "车联网..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
