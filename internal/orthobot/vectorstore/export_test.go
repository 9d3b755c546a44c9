package vectorstore

var (
	DecodeMatches   = decodeMatches
	KeywordsFrom    = keywordsFrom
	ParseQdrantURL  = parseQdrantURL
	QdrantPayload   = qdrantPayload
	MetadataFromMap = metadataFrom
)
