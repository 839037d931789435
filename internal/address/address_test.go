package address

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDerive_Deterministic(t *testing.T) {
	key := FromName("acme/infra")
	if Repo(key) != Repo(key) {
		t.Fatal("Repo() returned different addresses for the same key")
	}
	if Config() != Config() {
		t.Fatal("Config() is not stable")
	}
}

func TestDerive_KindsDoNotCollide(t *testing.T) {
	key := FromName("same-seed")
	seen := map[Key]string{}
	for name, addr := range map[string]Key{
		"repo":      Repo(key),
		"fork":      Fork(key),
		"config":    Config(),
		"lifecycle": Lifecycle(),
		"metrics":   Metrics(),
		"metadata":  GlobalMetadata(),
	} {
		if other, ok := seen[addr]; ok {
			t.Fatalf("%s and %s derived the same address", name, other)
		}
		seen[addr] = name
	}
}

func TestDerive_SeedBoundaries(t *testing.T) {
	a := Derive(KindRepo, []byte("ab"), []byte("c"))
	b := Derive(KindRepo, []byte("a"), []byte("bc"))
	if a == b {
		t.Fatal("length prefixing did not separate seed boundaries")
	}
}

func TestModule_ScopedToRepo(t *testing.T) {
	moduleKey := FromName("network")
	r1 := Repo(FromName("r1"))
	r2 := Repo(FromName("r2"))
	if Module(r1, moduleKey) == Module(r2, moduleKey) {
		t.Fatal("same module key under different repos must not collide")
	}
}

func TestModuleVersion_DistinctPerComponent(t *testing.T) {
	m := Module(Repo(FromName("r")), FromName("m"))
	versions := [][3]uint16{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 2, 3}, {3, 2, 1}, {256, 0, 0}, {1, 0, 0x100}}
	seen := map[Key][3]uint16{}
	for _, v := range versions {
		addr := ModuleVersion(m, v[0], v[1], v[2])
		if prev, ok := seen[addr]; ok {
			t.Fatalf("version %v collides with %v", v, prev)
		}
		seen[addr] = v
	}
}

func TestLink_OrderMatters(t *testing.T) {
	a, b := FromName("a"), FromName("b")
	if Link(a, b) == Link(b, a) {
		t.Fatal("Link(module, repo) must not be symmetric")
	}
}

func TestParse(t *testing.T) {
	k := FromName("x")
	got, err := Parse(k.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != k {
		t.Errorf("Parse(String()) = %s, want %s", got, k)
	}

	for _, bad := range []string{"", "abc", strings.Repeat("z", 64), strings.Repeat("a", 63)} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) expected error", bad)
		}
	}
}

func TestKey_JSON(t *testing.T) {
	type wrapper struct {
		ID Key `json:"id"`
	}
	in := wrapper{ID: FromName("json")}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), in.ID.String()) {
		t.Errorf("expected hex encoding in %s", data)
	}
	var out wrapper
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.ID != in.ID {
		t.Errorf("got %s, want %s", out.ID, in.ID)
	}
}

func TestKey_Scan(t *testing.T) {
	k := FromName("scan")
	var out Key
	if err := out.Scan(k[:]); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if out != k {
		t.Error("Scan did not round-trip bytes")
	}
	if err := out.Scan("not-bytes"); err == nil {
		t.Error("expected error scanning a string")
	}
	if err := out.Scan([]byte{1, 2}); err == nil {
		t.Error("expected error scanning short bytes")
	}
}

func TestNew_Random(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatal(err)
	}
	b, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if a == b || a.IsZero() {
		t.Error("New() should return distinct non-zero keys")
	}
}
