package ftpconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePASV(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr bool
	}{
		{name: "standard", reply: "227 Entering Passive Mode (192,168,1,5,48,57).", want: "192.168.1.5:12345"},
		{name: "no parens", reply: "227 Entering Passive Mode 192,168,1,5,48,57", wantErr: true},
		{name: "octet out of range", reply: "227 Entering Passive Mode (300,168,1,5,48,57)", wantErr: true},
		{name: "short", reply: "227 (1,2,3,4,5)", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePASV(tt.reply)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEPSV(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr bool
	}{
		{name: "standard", reply: "229 Entering Extended Passive Mode (|||6446|)", want: "6446"},
		{name: "zero port", reply: "229 Entering Extended Passive Mode (|||0|)", wantErr: true},
		{name: "port too large", reply: "229 (|||70000|)", wantErr: true},
		{name: "garbage", reply: "229 Entering Extended Passive Mode", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEPSV(tt.reply)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDataAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		pasvAddr    string
		controlHost string
		wantAddr    string
	}{
		{name: "normal address", pasvAddr: "192.168.1.5:12345", controlHost: "10.0.0.1", wantAddr: "192.168.1.5:12345"},
		{name: "zero address", pasvAddr: "0.0.0.0:12345", controlHost: "10.0.0.1", wantAddr: "10.0.0.1:12345"},
		{name: "invalid address", pasvAddr: "invalid", controlHost: "10.0.0.1", wantAddr: "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAddr, resolveDataAddr(tt.pasvAddr, tt.controlHost))
		})
	}
}
