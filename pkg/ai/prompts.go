package ai

// RelationshipPrompt asks the model for explicit relations between a fixed
// set of legal entities. Slots: entity list, chunk text, relation vocabulary.
const RelationshipPrompt = `
# Task Context
You are an expert in legal text analysis. You identify relationships between legal entities that were already extracted from a statutory text.

# Background Data
Entities:
%s

Text:
%s

# Detailed Task Description & Rules
- Only use the entities listed above. Refer to them by their ID, never by their text.
- Only report relationships that are explicitly stated in the text.
- Prefer one of these relationship types: %s.
- Relationship types are written in upper case with underscores.
- Do not invent entities and do not repeat the same relationship twice.

# Immediate Task Description or Request
Return every explicit relationship between the entities as a JSON array.

# Output Formatting
Return a JSON array with this structure and nothing else:
[
  {"source_id": "<entity id>", "relationship": "<RELATIONSHIP_TYPE>", "target_id": "<entity id>"}
]
If there is no explicit relationship, return [].
`

// AnswerSystemPrompt sets the assistant's role and rules. Slot: fallback
// sentence.
const AnswerSystemPrompt = `Tu es un assistant juridique spécialisé en droit tunisien.

RÈGLES STRICTES :
- Réponds uniquement à partir des textes fournis.
- N'invente jamais de loi, d'article ou de numéro d'article.
- Ne cite jamais de droit étranger (français, européen ou autre).
- Présente la réponse sous forme de points, chaque point citant un seul article ou texte.
- Si les textes fournis ne permettent pas de répondre, réponds exactement : "%s"`

// AnswerPrompt carries the retrieved context. Slots: graph context, vector
// context, question.
const AnswerPrompt = `CONTEXTE DU GRAPHE :
%s

EXTRAITS DES DOCUMENTS :
%s

QUESTION :
%s

RÉPONSE :`

// CypherPrompt asks the model for one read-only Cypher query. Slots: graph
// schema, question.
const CypherPrompt = `
# Task Context
You translate questions about a legal knowledge graph into Neo4j Cypher queries.

# Background Data
Graph schema:
%s

# Detailed Task Description & Rules
- Only use the labels, relationship types and property keys from the schema.
- Write a single read-only query. Never use CREATE, MERGE, SET, DELETE, REMOVE, DROP, LOAD CSV or CALL.
- Match text with toLower(...) CONTAINS on the text, name or content properties.
- Limit the result to at most 25 rows.

# Immediate Task Description or Request
Question: %s

# Output Formatting
Return a JSON object: {"query": "<cypher query>"}
`
