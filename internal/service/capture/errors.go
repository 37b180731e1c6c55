package capture

import "errors"

// Capture errors. Recognizers wrap these so the session can classify failures.
var (
	ErrUnsupported      = errors.New("speech recognition is not supported")
	ErrNetwork          = errors.New("speech recognition network failure")
	ErrPermissionDenied = errors.New("microphone access denied")
	ErrNoSpeech         = errors.New("no speech detected")
	ErrAudioCapture     = errors.New("audio capture failed")
	ErrStartFailed      = errors.New("could not start speech recognition")
)

var messages = []struct {
	err error
	msg string
}{
	{ErrUnsupported, "التعرف على الصوت غير مدعوم في هذا المتصفح."},
	{ErrNetwork, "مشكلة في الشبكة. يرجى التحقق من اتصالك بالإنترنت."},
	{ErrPermissionDenied, "تم رفض الوصول إلى الميكروفون. يرجى تمكين الوصول."},
	{ErrNoSpeech, "لم يتم اكتشاف أي كلام. حاول التحدث بوضوح."},
	{ErrAudioCapture, "فشل التقاط الصوت. تأكد من أن الميكروفون يعمل."},
	{ErrStartFailed, "لم يتمكن من بدء التعرف على الصوت."},
}

const unknownMessage = "حدث خطأ غير معروف في التعرف على الصوت."

// Message maps a capture error to its localized user-facing message.
func Message(err error) string {
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return unknownMessage
}
