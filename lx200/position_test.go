package lx200

import (
	"errors"
	"math"
	"testing"

	"github.com/w1xm/lx200_interface/coord"
)

func TestRA(t *testing.T) {
	for _, test := range []struct {
		reply   string
		want    float64
		wantErr bool
	}{
		{"12:34:56#", 12 + 34.0/60 + 56.0/3600, false},
		// A stray digit left over from a move command is trimmed.
		{"112:34:56#", 12 + 34.0/60 + 56.0/3600, false},
		{"12:34.5#", 12.575, false},
		{"garbage#", 0, true},
	} {
		t.Run(test.reply, func(t *testing.T) {
			conn := newReplyConn()
			conn.reply(cmdGetRA, test.reply)
			tel := newTestTelescope(t, conn)
			got, err := tel.RA()
			if test.wantErr {
				var uerr *UnexpectedReplyError
				if !errors.As(err, &uerr) {
					t.Fatalf("RA: got err %v, want UnexpectedReplyError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("RA: %v", err)
			}
			if math.Abs(got.Hours()-test.want) > 1e-9 {
				t.Errorf("RA: got %v hours, want %v", got.Hours(), test.want)
			}
		})
	}
}

func TestDec(t *testing.T) {
	for _, test := range []struct {
		reply string
		want  float64
	}{
		{"+45\xdf16:30#", 45.275},
		// Ten characters means a stray digit prefix.
		{"1+45\xdf16:30#", 45.275},
		{"-05\xdf30:00#", -5.5},
		{"+45:16:30#", 45.275},
	} {
		t.Run(test.reply, func(t *testing.T) {
			conn := newReplyConn()
			conn.reply(cmdGetDec, test.reply)
			tel := newTestTelescope(t, conn)
			got, err := tel.Dec()
			if err != nil {
				t.Fatalf("Dec: %v", err)
			}
			if math.Abs(got.Degrees()-test.want) > 1e-9 {
				t.Errorf("Dec: got %v, want %v", got.Degrees(), test.want)
			}
		})
	}
}

func TestAltitude(t *testing.T) {
	conn := newReplyConn()
	conn.reply(cmdGetAlt, "+54\xdf48:00#")
	tel := newTestTelescope(t, conn)
	got, err := tel.Altitude()
	if err != nil {
		t.Fatalf("Altitude: %v", err)
	}
	if math.Abs(got.Degrees()-54.8) > 1e-9 {
		t.Errorf("Altitude: got %v, want 54.8", got.Degrees())
	}
}

func TestAzimuthCorrection(t *testing.T) {
	for _, test := range []struct {
		correct bool
		want    float64
	}{
		{true, 54.6},
		{false, 234.6},
	} {
		conn := newReplyConn()
		conn.reply(cmdGetAz, "234\xdf36:00#")
		tel := newTestTelescope(t, conn)
		tel.cfg.Azimuth180Correct = test.correct
		got, err := tel.Azimuth()
		if err != nil {
			t.Fatalf("Azimuth: %v", err)
		}
		if math.Abs(got.Degrees()-test.want) > 1e-9 {
			t.Errorf("Azimuth (correct=%v): got %v, want %v", test.correct, got.Degrees(), test.want)
		}
	}
}

func TestPositionQueries(t *testing.T) {
	conn := newReplyConn()
	conn.reply(cmdGetRA, "12:00:00#")
	conn.reply(cmdGetDec, "+20\xdf00:00#")
	conn.reply(cmdGetAlt, "+54\xdf48:00#")
	conn.reply(cmdGetAz, "234\xdf36:00#")
	tel := newTestTelescope(t, conn)

	equ, err := tel.EquatorialPosition()
	if err != nil {
		t.Fatalf("EquatorialPosition: %v", err)
	}
	if equ.Frame != coord.Equatorial {
		t.Errorf("EquatorialPosition frame: got %v", equ.Frame)
	}
	if equ.RA.Hours() != 12 || equ.Dec.Degrees() != 20 {
		t.Errorf("EquatorialPosition: got %v", equ)
	}

	hor, err := tel.HorizontalPosition()
	if err != nil {
		t.Fatalf("HorizontalPosition: %v", err)
	}
	if hor.Frame != coord.Horizontal {
		t.Errorf("HorizontalPosition frame: got %v", hor.Frame)
	}
	if math.Abs(hor.Alt.Degrees()-54.8) > 1e-9 || math.Abs(hor.Az.Degrees()-54.6) > 1e-9 {
		t.Errorf("HorizontalPosition: got %v", hor)
	}
}

func TestSetTargetRA(t *testing.T) {
	conn := newReplyConn()
	conn.reply(":Sr12\xdf30:00#", "1")
	tel := newTestTelescope(t, conn)
	if err := tel.SetTargetRA(coord.FromHours(12.5)); err != nil {
		t.Fatalf("SetTargetRA: %v", err)
	}
	if got := conn.count(":Sr12\xdf30:00#"); got != 1 {
		t.Errorf("target frame sent %d times, want 1", got)
	}
}

func TestSetTargetRARejected(t *testing.T) {
	conn := newReplyConn()
	conn.reply(":Sr12\xdf30:00#", "0")
	tel := newTestTelescope(t, conn)
	err := tel.SetTargetRA(coord.FromHours(12.5))
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("SetTargetRA: got err %v, want RejectedError", err)
	}
	if rej.Cmd != ":Sr" || rej.Value != "12\xdf30:00" {
		t.Errorf("RejectedError: got cmd %q value %q", rej.Cmd, rej.Value)
	}
}

func TestSetTargetDec(t *testing.T) {
	conn := newReplyConn()
	conn.reply(":Sd-05\xdf30:00#", "1")
	tel := newTestTelescope(t, conn)
	if err := tel.SetTargetDec(coord.FromDegrees(-5.5)); err != nil {
		t.Fatalf("SetTargetDec: %v", err)
	}
	assertSent(t, conn, ":Sd-05\xdf30:00#")
}

func TestSetTargetAzimuthCachesCallerValue(t *testing.T) {
	// With the 180 correction on, the wire sees the shifted azimuth
	// but the cached target keeps the caller's value so the slew poll
	// compares like with like.
	conn := newReplyConn()
	conn.reply(":Sz270\xdf00:00#", "1")
	tel := newTestTelescope(t, conn)
	if err := tel.SetTargetAzimuth(coord.FromDegrees(90)); err != nil {
		t.Fatalf("SetTargetAzimuth: %v", err)
	}
	assertSent(t, conn, ":Sz270\xdf00:00#")
	if got := tel.TargetAzimuth().Degrees(); got != 90 {
		t.Errorf("TargetAzimuth: got %v, want 90", got)
	}
}

func TestSetTargetAzimuthUncorrected(t *testing.T) {
	conn := newReplyConn()
	conn.reply(":Sz090\xdf00:00#", "1")
	tel := newTestTelescope(t, conn)
	tel.cfg.Azimuth180Correct = false
	if err := tel.SetTargetAzimuth(coord.FromDegrees(90)); err != nil {
		t.Fatalf("SetTargetAzimuth: %v", err)
	}
	assertSent(t, conn, ":Sz090\xdf00:00#")
}

func TestSetTargetAzimuthWrapsNegative(t *testing.T) {
	conn := newReplyConn()
	conn.reply(":Sz270\xdf00:00#", "1")
	tel := newTestTelescope(t, conn)
	tel.cfg.Azimuth180Correct = false
	if err := tel.SetTargetAzimuth(coord.FromDegrees(-90)); err != nil {
		t.Fatalf("SetTargetAzimuth: %v", err)
	}
	assertSent(t, conn, ":Sz270\xdf00:00#")
}

func TestSetTargetAltitude(t *testing.T) {
	conn := newReplyConn()
	conn.reply(":Sa+45\xdf00:00#", "1")
	tel := newTestTelescope(t, conn)
	if err := tel.SetTargetAltitude(coord.FromDegrees(45)); err != nil {
		t.Fatalf("SetTargetAltitude: %v", err)
	}
	if got := tel.TargetAltitude().Degrees(); got != 45 {
		t.Errorf("TargetAltitude: got %v, want 45", got)
	}
}

func TestTargetQueries(t *testing.T) {
	conn := newReplyConn()
	conn.reply(cmdGetTargetRA, "12:30:00#")
	conn.reply(cmdGetTargetDec, "+45\xdf00:00#")
	tel := newTestTelescope(t, conn)
	ra, err := tel.TargetRA()
	if err != nil {
		t.Fatalf("TargetRA: %v", err)
	}
	if ra.Hours() != 12.5 {
		t.Errorf("TargetRA: got %v hours, want 12.5", ra.Hours())
	}
	dec, err := tel.TargetDec()
	if err != nil {
		t.Fatalf("TargetDec: %v", err)
	}
	if dec.Degrees() != 45 {
		t.Errorf("TargetDec: got %v, want 45", dec.Degrees())
	}
}

func TestSync(t *testing.T) {
	conn := newReplyConn()
	conn.reply(":Sr13\xdf00:00#", "1")
	conn.reply(":Sd+30\xdf00:00#", "1")
	conn.reply(cmdSync, " M31 EX GAL MAG 3.5 SZ178.0'#")
	tel := newTestTelescope(t, conn)
	if err := tel.Sync(coord.Equ(coord.FromHours(13), coord.FromDegrees(30))); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	assertSent(t, conn, ":Sr13\xdf00:00#", ":Sd+30\xdf00:00#", cmdSync)
}

func TestSyncEmptyReply(t *testing.T) {
	conn := newReplyConn()
	conn.reply(":Sr13\xdf00:00#", "1")
	conn.reply(":Sd+30\xdf00:00#", "1")
	conn.reply(cmdSync, "#")
	tel := newTestTelescope(t, conn)
	err := tel.Sync(coord.Equ(coord.FromHours(13), coord.FromDegrees(30)))
	var uerr *UnexpectedReplyError
	if !errors.As(err, &uerr) {
		t.Fatalf("Sync: got err %v, want UnexpectedReplyError", err)
	}
}

func TestSyncWrongFrame(t *testing.T) {
	conn := newReplyConn()
	tel := newTestTelescope(t, conn)
	if err := tel.Sync(coord.Hor(coord.FromDegrees(45), coord.FromDegrees(90))); err == nil {
		t.Fatal("Sync accepted a horizontal position")
	}
	if got := len(conn.sent()); got != 0 {
		t.Errorf("%d frames sent for a rejected sync, want 0", got)
	}
}
