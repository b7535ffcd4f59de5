package common

// Entity types used as graph labels. The set doubles as the allow-list the
// graph store validates labels against before they are placed into a query.
const (
	TypeLaw          = "Loi"
	TypeCode         = "Code"
	TypeArticle      = "Article"
	TypeChapter      = "Chapitre"
	TypeTitle        = "Titre"
	TypeSubtitle     = "Sous-titre"
	TypeConcept      = "Concept"
	TypePerson       = "Personne"
	TypeCompany      = "Entreprise"
	TypeOrganization = "Organisation"
	TypeAction       = "Action"
	TypeRight        = "Droit"
	TypeObligation   = "Obligation"
	TypeContract     = "Contrat"

	// LabelChunk is the label of the traceability node created for every
	// ingested chunk.
	LabelChunk = "Chunk"
)

// Structural relationship types that are not produced by the LLM.
const (
	RelPartOf        = "FAIT_PARTIE_DE"
	RelExtractedFrom = "EXTRACTED_FROM"
)

// EntityTypes lists every entity label accepted by the graph store.
var EntityTypes = []string{
	TypeLaw,
	TypeCode,
	TypeArticle,
	TypeChapter,
	TypeTitle,
	TypeSubtitle,
	TypeConcept,
	TypePerson,
	TypeCompany,
	TypeOrganization,
	TypeAction,
	TypeRight,
	TypeObligation,
	TypeContract,
}

// RelationshipVocabulary is the preferred set of relation labels suggested
// to the LLM. Labels outside of it are still accepted after sanitizing.
var RelationshipVocabulary = []string{
	"APPARTIENT_A",
	"TRAITE_DE",
	"REGIT",
	"CONCERNE",
	"OBLIGE",
	"PERMET",
	RelPartOf,
	"CITE",
	"EXEMPLE_DE",
}

// Chunk is a stable-identity unit of cleaned source text. Chunks are
// produced by a ChunkSource and never modified afterwards.
type Chunk struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Index  int    `json:"index"`
	Text   string `json:"text"`
}

// Entity is a typed legal concept found in a chunk. The ID is derived from
// the type and the normalized text only, so the same logical entity found in
// different chunks resolves to one graph node.
type Entity struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Text    string `json:"text"`
	ChunkID string `json:"chunk_id"`

	// Excerpt is an optional piece of the origin chunk stored as the node's
	// content. Only set for article entities.
	Excerpt string `json:"excerpt,omitempty"`
}

// Relationship is a directed, typed edge between two entities of the same
// extraction context. Type is sanitized, OriginalType keeps the raw label.
type Relationship struct {
	SourceID     string `json:"source_id"`
	Type         string `json:"type"`
	TargetID     string `json:"target_id"`
	OriginalType string `json:"original_type"`
}

// VectorRecord is a chunk as stored in the vector store.
type VectorRecord struct {
	ChunkID   string         `json:"chunk_id"`
	Source    string         `json:"source"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"-"`
	Score     float64        `json:"score"`
}

// IsEntityType reports whether t is one of the known entity labels.
func IsEntityType(t string) bool {
	for _, et := range EntityTypes {
		if et == t {
			return true
		}
	}
	return false
}
