package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"path/filepath"

	unitypack "github.com/ahrav/go-unitypack"
)

func main() {
	fmt.Println("=== Unity Bundle Example ===")
	fmt.Println()

	// Demonstrate ParseVersion with various revision strings.
	demonstrateParseVersion()
	fmt.Println()

	// Create a temporary directory for our example bundle.
	tempDir, err := os.MkdirTemp("", "unitypack-example-")
	if err != nil {
		log.Fatal("Failed to create temp dir:", err)
	}
	defer os.RemoveAll(tempDir)

	files := createExampleFiles()
	bundlePath := filepath.Join(tempDir, "example.bundle")
	if err := os.WriteFile(bundlePath, buildUncompressedBundle(files), 0o644); err != nil {
		log.Fatal("Failed to write bundle:", err)
	}
	fmt.Printf("Created example bundle: %s\n", bundlePath)
	fmt.Println()

	demonstrateDecode(bundlePath, files)
	fmt.Println()

	demonstrateReferences()
}

// demonstrateParseVersion shows how revision strings are parsed.
func demonstrateParseVersion() {
	fmt.Println("--- ParseVersion Examples ---")

	examples := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "Release build", input: "2020.3.34f1", valid: true},
		{name: "Patch build", input: "2019.4.40p3", valid: true},
		{name: "Beta build", input: "2023.1.0b12", valid: true},
		{name: "Legacy revision", input: "5.6.7f1", valid: true},
		{name: "Stripped revision", input: "0.0.0", valid: true},
		{name: "Invalid - too few parts", input: "2021.3", valid: false},
		{name: "Invalid - empty", input: "", valid: false},
	}

	for _, example := range examples {
		fmt.Printf("Testing: %s\n", example.name)
		fmt.Printf("  Input: %q\n", example.input)

		v, err := unitypack.ParseVersion(example.input)
		switch {
		case example.valid && err != nil:
			fmt.Printf("  ❌ Expected success but got error: %v\n", err)
		case example.valid:
			fmt.Printf("  ✅ Parsed %d.%d.%d (build %q%d, stripped=%v)\n",
				v.Major, v.Minor, v.Patch, v.BuildType, v.Build, v.IsStripped())
		case err != nil:
			fmt.Printf("  ✅ Correctly rejected: %v\n", err)
		default:
			fmt.Printf("  ❌ Expected error but parsing succeeded\n")
		}
	}
}

// ExampleFile is one file packed into the example bundle.
type ExampleFile struct {
	Path    string
	Content []byte
}

func createExampleFiles() []ExampleFile {
	return []ExampleFile{
		{Path: "CAB-4d1f0e6c2b9a", Content: bytes.Repeat([]byte("serialized object data "), 16)},
		{Path: "CAB-4d1f0e6c2b9a.resS", Content: bytes.Repeat([]byte{0x10, 0x20, 0x30, 0x40}, 64)},
		{Path: "CAB-4d1f0e6c2b9a.resource", Content: []byte("audio clip bytes")},
	}
}

// buildUncompressedBundle lays out a single-block UnityFS archive with no
// compression: header, blocks info, then the data region.
func buildUncompressedBundle(files []ExampleFile) []byte {
	be := binary.BigEndian

	var data bytes.Buffer
	for _, f := range files {
		data.Write(f.Content)
	}

	var info bytes.Buffer
	info.Write(make([]byte, 16)) // hash
	binary.Write(&info, be, int32(1))
	binary.Write(&info, be, uint32(data.Len())) // uncompressed
	binary.Write(&info, be, uint32(data.Len())) // compressed
	binary.Write(&info, be, uint16(0))
	binary.Write(&info, be, int32(len(files)))
	var off int64
	for _, f := range files {
		binary.Write(&info, be, off)
		binary.Write(&info, be, int64(len(f.Content)))
		binary.Write(&info, be, uint32(4))
		info.WriteString(f.Path)
		info.WriteByte(0)
		off += int64(len(f.Content))
	}

	var out bytes.Buffer
	out.WriteString("UnityFS\x00")
	binary.Write(&out, be, uint32(6))
	out.WriteString("5.x.x\x00")
	out.WriteString("2018.4.2f1\x00")
	sizeAt := out.Len()
	binary.Write(&out, be, int64(0))
	binary.Write(&out, be, uint32(info.Len()))
	binary.Write(&out, be, uint32(info.Len()))
	binary.Write(&out, be, uint32(0))
	out.Write(info.Bytes())
	out.Write(data.Bytes())

	b := out.Bytes()
	be.PutUint64(b[sizeAt:], uint64(len(b)))
	return b
}

func demonstrateDecode(path string, files []ExampleFile) {
	fmt.Println("--- Decoder Examples ---")

	dec, err := unitypack.NewDecoder()
	if err != nil {
		log.Fatal("Failed to create decoder:", err)
	}

	layout, err := dec.Inspect(path)
	if err != nil {
		log.Fatal("Failed to inspect bundle:", err)
	}
	fmt.Printf("Inspected %s: format %d, revision %s, %d block(s), %d entries\n",
		layout.Header.Signature, layout.Header.Version, layout.Header.Revision,
		len(layout.Blocks), len(layout.Nodes))

	archive, err := dec.Open(path)
	if err != nil {
		log.Fatal("Failed to open bundle:", err)
	}
	defer archive.Close()

	fmt.Printf("Opened %s as %s\n", filepath.Base(path), archive.Type)
	for i, e := range archive.Entries {
		content, err := e.Bytes()
		if err != nil {
			log.Fatalf("Failed to read entry %s: %v", e.Path, err)
		}
		status := "✅"
		if !bytes.Equal(content, files[i].Content) {
			status = "❌"
		}
		fmt.Printf("  %s %-28s %5d bytes\n", status, e.Path, e.Size)
	}

	one, err := dec.ReadEntry(path, files[2].Path)
	if err != nil {
		log.Fatal("Failed to read entry:", err)
	}
	fmt.Printf("ReadEntry(%s) = %q\n", files[2].Path, one)
}

// Texture is a minimal object type for the reference example.
type Texture struct {
	unitypack.ObjectBase
	Name string
}

// Material references a texture that may live in another file.
type Material struct {
	unitypack.ObjectBase
	MainTex *unitypack.PPtr[*Texture]
}

func demonstrateReferences() {
	fmt.Println("--- Reference Examples ---")

	reg := unitypack.NewRegistry()
	level := unitypack.NewSerializedFile("CAB-level", 22)
	shared := unitypack.NewSerializedFile("CAB-shared", 22)
	reg.Add(level)
	reg.Add(shared)

	tex := &Texture{ObjectBase: unitypack.NewObjectBase(shared, 42), Name: "Bricks"}
	shared.AddObject(tex)

	mat := &Material{ObjectBase: unitypack.NewObjectBase(level, 1)}
	mat.MainTex = unitypack.NewPPtr[*Texture](level, 0, 0)
	mat.MainTex.Set(tex)
	level.AddObject(mat)

	fmt.Printf("Material references FileID %d, PathID %d\n", mat.MainTex.FileID, mat.MainTex.PathID)
	if got, ok := mat.MainTex.TryGet(); ok {
		fmt.Printf("  ✅ Resolved texture %q from %s\n", got.Name, got.File().Name)
	} else {
		fmt.Println("  ❌ Texture did not resolve")
	}

	reg.Remove(1)
	if _, ok := mat.MainTex.TryGet(); !ok {
		fmt.Println("  ✅ Reference stops resolving once CAB-shared is unloaded")
	}
}
