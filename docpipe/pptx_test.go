package docpipe

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hazyhaar/docharvest/materialize"
)

func TestPPTX_TextInPresentationOrder(t *testing.T) {
	dir := t.TempDir()
	path := writePPTX(t, dir, "deck.pptx", pptxFixture{slides: []pptxSlideFixture{
		{shapes: pTextShape("Title slide") + pTextShape("Subtitle", "second para")},
		{shapes: pTable([][]string{{"not", "shape text"}})},
		{shapes: pTextShape("Closing")},
	}})

	text, err := openEngine(t, path, nil).Text(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// The table-only slide contributes an empty unit.
	want := "Title slide\nSubtitle\nsecond para\n\nClosing"
	if text != want {
		t.Fatalf("text = %q, want %q", text, want)
	}
}

func TestPPTX_SlideOrderWithoutPresentationPart(t *testing.T) {
	// WHAT: a package missing presentation.xml, with more than nine slides.
	// WHY: slides fall back to numeric part-name order, so slide10 follows slide9.
	var slides []pptxSlideFixture
	var want []string
	for i := 1; i <= 11; i++ {
		s := fmt.Sprintf("slide %d", i)
		slides = append(slides, pptxSlideFixture{shapes: pTextShape(s)})
		want = append(want, s)
	}
	path := writePPTX(t, t.TempDir(), "loose.pptx", pptxFixture{slides: slides, noPresentation: true})

	text, err := openEngine(t, path, nil).Text(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if text != strings.Join(want, "\n") {
		t.Fatalf("text = %q", text)
	}
}

func TestPPTX_EmptyPresentation(t *testing.T) {
	dir := t.TempDir()
	path := writePPTX(t, dir, "empty.pptx", pptxFixture{})

	eng := openEngine(t, path, nil)
	text, err := eng.Text(context.Background())
	if err != nil || text != "" {
		t.Fatalf("text = %q, %v; want empty", text, err)
	}
	links, err := eng.Links(context.Background())
	if err != nil || len(links) != 0 {
		t.Fatalf("links = %v, %v", links, err)
	}
}

func TestPPTX_Tables(t *testing.T) {
	dir := t.TempDir()
	path := writePPTX(t, dir, "tables.pptx", pptxFixture{slides: []pptxSlideFixture{
		{shapes: pTextShape("intro")},
		{shapes: pTable([][]string{{"h1", "h2"}, {"v1", "v2"}}) + pTable([][]string{{"x"}})},
	}})

	tables, err := openEngine(t, path, nil).Tables(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []Table{{{"h1", "h2"}, {"v1", "v2"}}, {{"x"}}}
	if !reflect.DeepEqual(tables, want) {
		t.Fatalf("tables = %v, want %v", tables, want)
	}
}

func TestPPTX_LinksDeduplicated(t *testing.T) {
	// WHAT: three runs pointing at the same URL across two slides.
	// WHY: presentation links are reported once per distinct target.
	dir := t.TempDir()
	link := fixtureRel{id: "rId2", typ: relURL, target: "https://example.com/x", external: true}
	other := fixtureRel{id: "rId3", typ: relURL, target: "https://example.com/y", external: true}
	path := writePPTX(t, dir, "links.pptx", pptxFixture{slides: []pptxSlideFixture{
		{shapes: pTextShape("one|rId2", "two|rId2"), rels: []fixtureRel{link}},
		{shapes: pTextShape("three|rId2"), rels: []fixtureRel{link}},
	}})

	links, err := openEngine(t, path, nil).Links(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(links, []string{"https://example.com/x"}) {
		t.Fatalf("links = %v, want one entry", links)
	}

	path = writePPTX(t, dir, "links2.pptx", pptxFixture{slides: []pptxSlideFixture{
		{shapes: pTextShape("a|rId3", "b|rId2"), rels: []fixtureRel{link, other}},
		{shapes: pTextShape("c|rId3"), rels: []fixtureRel{other}},
	}})
	links, err = openEngine(t, path, nil).Links(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://example.com/y", "https://example.com/x"}
	if !reflect.DeepEqual(links, want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
}

func TestPPTX_ImagesCarrySlideIndex(t *testing.T) {
	dir := t.TempDir()
	img := fixtureRel{id: "rId7", typ: relImg, target: "../media/image1.png"}
	path := writePPTX(t, dir, "pics.pptx", pptxFixture{
		slides: []pptxSlideFixture{
			{shapes: pTextShape("no pictures here")},
			{shapes: pPicture("rId7") + pPicture("rId7"), rels: []fixtureRel{img}},
		},
		media: map[string][]byte{"ppt/media/image1.png": pngBytes(t)},
	})

	imgDir := filepath.Join(dir, "out")
	images, err := openEngine(t, path, materialize.New(imgDir)).Images(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	for i, want := range []string{"pics_page_2_img_1.png", "pics_page_2_img_2.png"} {
		if images[i].Unit != 1 {
			t.Errorf("image %d unit = %d, want 1", i, images[i].Unit)
		}
		if filepath.Base(images[i].Path) != want {
			t.Errorf("image %d path = %q, want %q", i, images[i].Path, want)
		}
	}
}

func TestPPTX_Metadata(t *testing.T) {
	dir := t.TempDir()
	path := writePPTX(t, dir, "meta.pptx", pptxFixture{
		slides: []pptxSlideFixture{{shapes: pTextShape("x")}},
		core:   map[string]string{"dc:title": "Roadmap", "cp:keywords": "plan, 2025"},
	})

	md, err := openEngine(t, path, nil).Metadata(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if md["title"] != "Roadmap" || md["keywords"] != "plan, 2025" {
		t.Fatalf("metadata = %v", md)
	}
	if _, ok := md["author"]; !ok {
		t.Fatal("fixed key set must include author")
	}
}
