package characters

import (
	"math/rand"
	"strings"
)

type voiceKey struct {
	energy   string // "E" or "I", from the first MBTI letter
	gender   string
	ageGroup string
}

const (
	ageGroupChild = "child"
	ageGroupTeen  = "teen"
	ageGroupYouth = "youth"
)

// Voice catalog per persona bucket. IDs match the speech provider's voices;
// buckets with more than one entry are picked from at random so siblings'
// characters do not all sound identical.
var voiceCatalog = map[voiceKey][]string{
	{"E", "남자", ageGroupChild}: {"nwoof"},
	{"E", "남자", ageGroupTeen}:  {"njonghyun"},
	{"E", "남자", ageGroupYouth}: {"vdonghyun", "nmammon"},
	{"E", "여자", ageGroupChild}: {"ngaram", "nmeow"},
	{"E", "여자", ageGroupTeen}:  {"nihyun"},
	{"E", "여자", ageGroupYouth}: {"vyuna", "vhyeri"},
	{"I", "남자", ageGroupChild}: {"nhajun"},
	{"I", "남자", ageGroupTeen}:  {"njaewook", "njoonyoung"},
	{"I", "남자", ageGroupYouth}: {"vdaeseong", "vian", "nkyuwon"},
	{"I", "여자", ageGroupChild}: {"vdain", "ndain"},
	{"I", "여자", ageGroupTeen}:  {"nminseo", "nbora", "njiwon"},
	{"I", "여자", ageGroupYouth}: {"vgoeun", "ntiffany"},
}

// VoiceTypeFor derives the speech voice from the character's persona
// attributes. It returns "" when the persona is too incomplete to pick one.
func VoiceTypeFor(mbti, gender *string, age *int) string {
	if gender == nil || age == nil {
		return ""
	}

	energy := "I"
	if mbti != nil && strings.HasPrefix(strings.ToUpper(strings.TrimSpace(*mbti)), "E") {
		energy = "E"
	}

	var ageGroup string
	switch {
	case *age <= 11:
		ageGroup = ageGroupChild
	case *age <= 17:
		ageGroup = ageGroupTeen
	default:
		ageGroup = ageGroupYouth
	}

	options := voiceCatalog[voiceKey{energy: energy, gender: strings.TrimSpace(*gender), ageGroup: ageGroup}]
	if len(options) == 0 {
		return ""
	}
	return options[rand.Intn(len(options))]
}
