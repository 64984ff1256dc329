package characters

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestVoiceTypeForBuckets(t *testing.T) {
	tests := []struct {
		name    string
		mbti    *string
		gender  *string
		age     *int
		allowed []string
	}{
		{"extroverted boy child", strPtr("ENFP"), strPtr("남자"), intPtr(7), []string{"nwoof"}},
		{"introverted boy child", strPtr("ISTJ"), strPtr("남자"), intPtr(7), []string{"nhajun"}},
		{"extroverted girl child", strPtr("esfp"), strPtr("여자"), intPtr(11), []string{"ngaram", "nmeow"}},
		{"introverted girl teen", strPtr("INFJ"), strPtr("여자"), intPtr(14), []string{"nminseo", "nbora", "njiwon"}},
		{"extroverted boy teen", strPtr("ENTP"), strPtr("남자"), intPtr(17), []string{"njonghyun"}},
		{"introverted man youth", strPtr("INTP"), strPtr("남자"), intPtr(18), []string{"vdaeseong", "vian", "nkyuwon"}},
		{"extroverted woman youth", strPtr("ENFJ"), strPtr("여자"), intPtr(30), []string{"vyuna", "vhyeri"}},
		{"missing mbti defaults introverted", nil, strPtr("여자"), intPtr(5), []string{"vdain", "ndain"}},
		{"gender with whitespace", strPtr("ESTP"), strPtr(" 남자 "), intPtr(20), []string{"vdonghyun", "nmammon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			voice := VoiceTypeFor(tt.mbti, tt.gender, tt.age)
			require.Contains(t, tt.allowed, voice)
		})
	}
}

func TestVoiceTypeForIncompletePersona(t *testing.T) {
	require.Empty(t, VoiceTypeFor(strPtr("ENFP"), nil, intPtr(7)))
	require.Empty(t, VoiceTypeFor(strPtr("ENFP"), strPtr("남자"), nil))
	require.Empty(t, VoiceTypeFor(nil, nil, nil))
	require.Empty(t, VoiceTypeFor(strPtr("ENFP"), strPtr("robot"), intPtr(7)))
}

func TestVoiceTypeForStaysInsideBucket(t *testing.T) {
	// The pick is random within the bucket but must never leave it.
	for i := 0; i < 50; i++ {
		voice := VoiceTypeFor(strPtr("ISFP"), strPtr("남자"), intPtr(25))
		require.Contains(t, []string{"vdaeseong", "vian", "nkyuwon"}, voice)
	}
}
