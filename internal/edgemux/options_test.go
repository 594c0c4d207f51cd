package edgemux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "zero value gets defaults",
			in:   PortOptions{},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "explicit values survive",
			in:   PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"},
			want: PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"},
		},
		{
			name: "negative baud rate falls back to default",
			in:   PortOptions{BaudRate: -5},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "five data bits allowed",
			in:   PortOptions{DataBits: 5},
			want: PortOptions{BaudRate: 115200, DataBits: 5, StopBits: 1, Parity: "N"},
		},
		{name: "four data bits rejected", in: PortOptions{DataBits: 4}, wantErr: true},
		{name: "nine data bits rejected", in: PortOptions{DataBits: 9}, wantErr: true},
		{name: "three stop bits rejected", in: PortOptions{StopBits: 3}, wantErr: true},
		{name: "unknown parity rejected", in: PortOptions{Parity: "X"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.in.Normalize()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%+v) = nil error, want error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%+v) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("Normalize(%+v) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

// Parity arrives from config files and the HTTP API in whatever spelling the
// operator typed; all of them must land on the single canonical letter.
func TestPortOptions_NormalizeParity(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "N"},
		{"N", "N"},
		{"n", "N"},
		{"NONE", "N"},
		{"none", "N"},
		{"E", "E"},
		{"e", "E"},
		{"EVEN", "E"},
		{"even", "E"},
		{"O", "O"},
		{"o", "O"},
		{"ODD", "O"},
		{"odd", "O"},
		{"  N  ", "N"},
	}
	for _, tc := range tests {
		got, err := PortOptions{Parity: tc.input}.Normalize()
		if err != nil {
			t.Errorf("Normalize with parity %q: unexpected error %v", tc.input, err)
			continue
		}
		if got.Parity != tc.want {
			t.Errorf("Normalize with parity %q: got %q, want %q", tc.input, got.Parity, tc.want)
		}
	}
}

func TestPortOptions_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b PortOptions
		want bool
	}{
		{
			name: "identical explicit options",
			a:    PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
			b:    PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
			want: true,
		},
		{
			name: "zero value equals explicit defaults",
			a:    PortOptions{},
			b:    PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
			want: true,
		},
		{
			name: "parity spelling does not matter",
			a:    PortOptions{Parity: "even"},
			b:    PortOptions{Parity: "E"},
			want: true,
		},
		{
			name: "different baud rates",
			a:    PortOptions{BaudRate: 9600},
			b:    PortOptions{BaudRate: 115200},
			want: false,
		},
		{
			name: "different parity",
			a:    PortOptions{Parity: "E"},
			b:    PortOptions{Parity: "O"},
			want: false,
		},
		{
			name: "invalid options never compare equal",
			a:    PortOptions{DataBits: 4},
			b:    PortOptions{},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Equal(tc.b); got != tc.want {
				t.Errorf("Equal(%+v, %+v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if got := tc.b.Equal(tc.a); got != tc.want {
				t.Errorf("Equal(%+v, %+v) = %v, want %v", tc.b, tc.a, got, tc.want)
			}
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	tests := []struct {
		name       string
		in         PortOptions
		wantBaud   int
		wantParity serial.Parity
		wantStop   serial.StopBits
		wantErr    bool
	}{
		{
			name:       "defaults map to 8N1",
			in:         PortOptions{},
			wantBaud:   115200,
			wantParity: serial.NoParity,
			wantStop:   serial.OneStopBit,
		},
		{
			name:       "even parity",
			in:         PortOptions{Parity: "E"},
			wantBaud:   115200,
			wantParity: serial.EvenParity,
			wantStop:   serial.OneStopBit,
		},
		{
			name:       "odd parity",
			in:         PortOptions{Parity: "O"},
			wantBaud:   115200,
			wantParity: serial.OddParity,
			wantStop:   serial.OneStopBit,
		},
		{
			name:       "two stop bits",
			in:         PortOptions{StopBits: 2},
			wantBaud:   115200,
			wantParity: serial.NoParity,
			wantStop:   serial.TwoStopBits,
		},
		{name: "invalid options propagate the error", in: PortOptions{DataBits: 9}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mode, err := tc.in.SerialMode()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("SerialMode(%+v) = nil error, want error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("SerialMode(%+v) error = %v", tc.in, err)
			}
			if mode.BaudRate != tc.wantBaud {
				t.Errorf("BaudRate = %d, want %d", mode.BaudRate, tc.wantBaud)
			}
			if mode.Parity != tc.wantParity {
				t.Errorf("Parity = %v, want %v", mode.Parity, tc.wantParity)
			}
			if mode.StopBits != tc.wantStop {
				t.Errorf("StopBits = %v, want %v", mode.StopBits, tc.wantStop)
			}
		})
	}
}
