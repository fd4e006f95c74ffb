package analysis

// systemPrompt instructs the model to return structured notes as JSON. The
// client renders the JSON to markdown so a malformed or partial response is
// caught here rather than in the notes file.
const systemPrompt = `You are an assistant that produces meeting and voice-memo notes from transcripts.

Respond with JSON only, using this shape:
{
  "summary": "two to four sentence overview",
  "key_points": ["point", ...],
  "action_items": ["action", ...],
  "open_questions": ["question", ...]
}

Omit no fields; use empty arrays when a section does not apply. Do not invent
content that is not supported by the transcript.`
