package config

import "testing"

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	cfg := Default()
	if cfg.MSS != 1500 {
		t.Fatalf("MSS = %d, want 1500", cfg.MSS)
	}
	if !cfg.SndSyn || !cfg.RcvSyn {
		t.Fatal("expected blocking mode by default")
	}
}

func TestLoadOverridesOnlyMentionedFields(t *testing.T) {
	cfg, err := Load([]byte("mss: 9000\nreuse_addr: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MSS != 9000 {
		t.Fatalf("MSS = %d, want 9000", cfg.MSS)
	}
	if !cfg.ReuseAddr {
		t.Fatal("expected reuse_addr true")
	}
	if cfg.SndBuf != Default().SndBuf {
		t.Fatalf("SndBuf = %d, want default %d", cfg.SndBuf, Default().SndBuf)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.MSS = 1400
	data, err := Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.MSS != 1400 {
		t.Fatalf("MSS = %d, want 1400", out.MSS)
	}
}
