// Package events defines the typed event contract the voice chat session
// dispatches on.
//
// Event kinds are grouped by namespace:
//
//   - remote.*
//   - user_input.*
//
// remote events are produced by classifying one inbound wire message. Every
// wire message maps to exactly one of them:
//
//   - SessionUpdated (remote.session_updated): session parameters accepted.
//   - AudioDelta (remote.audio_delta): base64 PCM16 chunk of reply audio.
//   - TextDelta (remote.text_delta): chunk of reply text or reply transcript.
//   - TurnStarted (remote.turn_started): assistant response started.
//   - TurnDone (remote.turn_done): assistant response finished.
//   - TranscriptionCompleted (remote.transcription_completed): transcript of
//     the committed user audio.
//   - Error (remote.error): error reported by the service.
//   - Unknown (remote.unknown): anything else; carries the wire type.
//
// user_input events are produced by the speech gate:
//
//   - UserSpeechStarted (user_input.speech_started): speech activity began.
//   - UserSpeechEnded (user_input.speech_ended): utterance finalized; carries
//     the captured samples.
//   - UserSpeechMisfire (user_input.speech_misfire): speech began but was too
//     short to count as an utterance.
package events
