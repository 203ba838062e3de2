package models

import (
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNote_WireIgnoresFieldCache(t *testing.T) {
	var n Note
	require.NoError(t, json.Unmarshal([]byte(`[5,"g",7,100,3,"t","a\u001fb",12345,987,0,""]`), &n))
	assert.Equal(t, int64(5), n.ID)
	assert.Equal(t, "a\x1fb", n.Fields)
	assert.Empty(t, n.SortField)
	assert.Zero(t, n.Checksum)

	n.SortField, n.Checksum = "a", 42
	b, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `[5,"g",7,100,3,"t","a\u001fb","","",0,""]`, string(b))
}

func TestCard_RejectsWrongColumnCount(t *testing.T) {
	var c Card
	err := json.Unmarshal([]byte(`[1,2,3]`), &c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 18 columns")
}

func TestSanityCounts_WireLayout(t *testing.T) {
	s := SanityCounts{New: 1, Learn: 2, Review: 3, Cards: 4, Notes: 5, Revlog: 6, Graves: 7, Models: 8, Decks: 9, DeckConfigs: 10}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `[[1,2,3],4,5,6,7,8,9,10]`, string(b))

	var back SanityCounts
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, s, back)

	assert.Error(t, json.Unmarshal([]byte(`[[1,2],4,5,6,7,8,9,10]`), &back))
}

func TestMediaChange_NullChecksumIsDeletion(t *testing.T) {
	var changes []MediaChange
	require.NoError(t, json.Unmarshal([]byte(`[["a.jpg",4,"abcd"],["b.jpg",5,null]]`), &changes))
	require.Len(t, changes, 2)
	assert.Equal(t, MediaChange{Fname: "a.jpg", Usn: 4, Csum: "abcd"}, changes[0])
	assert.Equal(t, MediaChange{Fname: "b.jpg", Usn: 5}, changes[1])

	b, err := json.Marshal(changes[1])
	require.NoError(t, err)
	assert.JSONEq(t, `["b.jpg",5,null]`, string(b))
}

func TestDeckChanges_EmptyEncodesAsTwoArrays(t *testing.T) {
	b, err := json.Marshal(DeckChanges{})
	require.NoError(t, err)
	assert.JSONEq(t, `[[],[]]`, string(b))

	var d DeckChanges
	assert.Error(t, json.Unmarshal([]byte(`[[]]`), &d))
}

func TestGraves_NewEncodesEmptyArrays(t *testing.T) {
	g := NewGraves()
	assert.True(t, g.Empty())
	b, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cards":[],"notes":[],"decks":[]}`, string(b))
}

func TestCollectionMeta_Dirty(t *testing.T) {
	assert.True(t, CollectionMeta{Mod: 10, Ls: 5}.Dirty())
	assert.False(t, CollectionMeta{Mod: 10, Ls: 10}.Dirty())
}

func TestFieldCache_UsesFirstField(t *testing.T) {
	sfld, csum := FieldCache("front" + FieldSeparator + "back")
	assert.Equal(t, "front", sfld)
	assert.Positive(t, csum)
	assert.LessOrEqual(t, csum, int64(0xffffffff))

	sfld2, csum2 := FieldCache("front")
	assert.Equal(t, sfld, sfld2)
	assert.Equal(t, csum, csum2)
}
