package common

import (
	"math"
	"testing"
)

func approxEqual(a, b []float32) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > 1e-5 {
			return false
		}
	}
	return true
}

func TestComposeTRSIdentity(t *testing.T) {
	var m [16]float32
	ComposeTRS(m[:], [3]float32{}, [4]float32{0, 0, 0, 1}, [3]float32{1, 1, 1})
	want := IdentityMatrix()
	if m != want {
		t.Fatalf("ComposeTRS:\nhave %v\nwant %v", m, want)
	}
}

func TestComposeTRSTranslationScale(t *testing.T) {
	var m [16]float32
	ComposeTRS(m[:], [3]float32{1, 2, 3}, [4]float32{0, 0, 0, 1}, [3]float32{2, 3, 4})
	want := [16]float32{2, 0, 0, 0, 0, 3, 0, 0, 0, 0, 4, 0, 1, 2, 3, 1}
	if m != want {
		t.Fatalf("ComposeTRS:\nhave %v\nwant %v", m, want)
	}
}

func TestInvert4RoundTrip(t *testing.T) {
	var m, inv, prod [16]float32
	q := QuatFromAxisAngle([3]float32{0, 1, 0}, 0.7)
	ComposeTRS(m[:], [3]float32{4, -2, 9}, q, [3]float32{2, 2, 2})
	if !Invert4(inv[:], m[:]) {
		t.Fatal("Invert4 reported a singular matrix")
	}
	Mul4(prod[:], m[:], inv[:])
	want := IdentityMatrix()
	if !approxEqual(prod[:], want[:]) {
		t.Fatalf("m * inverse(m):\nhave %v\nwant identity", prod)
	}
}

func TestInvert4Singular(t *testing.T) {
	var zero, out [16]float32
	out[0] = 42
	if Invert4(out[:], zero[:]) {
		t.Fatal("Invert4 inverted the zero matrix")
	}
	if out[0] != 42 {
		t.Fatal("Invert4 wrote output for a singular matrix")
	}
}

func TestNormalMatrixUniformScale(t *testing.T) {
	var world, normal [16]float32
	ComposeTRS(world[:], [3]float32{5, 5, 5}, [4]float32{0, 0, 0, 1}, [3]float32{2, 2, 2})
	NormalMatrix(normal[:], world[:])
	want := [16]float32{0.5, 0, 0, 0, 0, 0.5, 0, 0, 0, 0, 0.5, 0, 0, 0, 0, 1}
	if !approxEqual(normal[:], want[:]) {
		t.Fatalf("NormalMatrix:\nhave %v\nwant %v", normal, want)
	}
}

func TestNormalMatrixSingularFallsBackToIdentity(t *testing.T) {
	var world, normal [16]float32
	NormalMatrix(normal[:], world[:])
	if normal != IdentityMatrix() {
		t.Fatalf("NormalMatrix of singular matrix:\nhave %v\nwant identity", normal)
	}
}

func TestPutFloat32s(t *testing.T) {
	dst := make([]byte, 8)
	PutFloat32s(dst, []float32{1, -2})
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xc0}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("PutFloat32s:\nhave % x\nwant % x", dst, want)
		}
	}
}
