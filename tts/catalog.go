package tts

// Built-in catalog for the Korean speech provider. The IDs line up with the
// persona-to-voice assignment done when a character's profile is completed.
func defaultVoiceCatalog() []VoiceOption {
	return []VoiceOption{
		{ID: "nwoof", Name: "우프", Language: "ko-KR", Gender: "male", AgeGroup: "child", Description: "밝고 활발한 남자 어린이"},
		{ID: "nhajun", Name: "하준", Language: "ko-KR", Gender: "male", AgeGroup: "child", Description: "차분한 남자 어린이"},
		{ID: "ngaram", Name: "가람", Language: "ko-KR", Gender: "female", AgeGroup: "child", Description: "명랑한 여자 어린이"},
		{ID: "nmeow", Name: "야옹이", Language: "ko-KR", Gender: "female", AgeGroup: "child", Description: "귀여운 여자 어린이"},
		{ID: "vdain", Name: "다인", Language: "ko-KR", Gender: "female", AgeGroup: "child", Description: "조용한 여자 어린이"},
		{ID: "ndain", Name: "다인(클리어)", Language: "ko-KR", Gender: "female", AgeGroup: "child"},
		{ID: "njonghyun", Name: "종현", Language: "ko-KR", Gender: "male", AgeGroup: "teen", Description: "씩씩한 남자 청소년"},
		{ID: "njaewook", Name: "재욱", Language: "ko-KR", Gender: "male", AgeGroup: "teen"},
		{ID: "njoonyoung", Name: "준영", Language: "ko-KR", Gender: "male", AgeGroup: "teen"},
		{ID: "nihyun", Name: "이현", Language: "ko-KR", Gender: "female", AgeGroup: "teen", Description: "발랄한 여자 청소년"},
		{ID: "nminseo", Name: "민서", Language: "ko-KR", Gender: "female", AgeGroup: "teen"},
		{ID: "nbora", Name: "보라", Language: "ko-KR", Gender: "female", AgeGroup: "teen"},
		{ID: "njiwon", Name: "지원", Language: "ko-KR", Gender: "female", AgeGroup: "teen"},
		{ID: "vdonghyun", Name: "동현", Language: "ko-KR", Gender: "male", AgeGroup: "youth"},
		{ID: "nmammon", Name: "마몬", Language: "ko-KR", Gender: "male", AgeGroup: "youth"},
		{ID: "vdaeseong", Name: "대성", Language: "ko-KR", Gender: "male", AgeGroup: "youth"},
		{ID: "vian", Name: "이안", Language: "ko-KR", Gender: "male", AgeGroup: "youth"},
		{ID: "nkyuwon", Name: "규원", Language: "ko-KR", Gender: "male", AgeGroup: "youth"},
		{ID: "vyuna", Name: "유나", Language: "ko-KR", Gender: "female", AgeGroup: "youth"},
		{ID: "vhyeri", Name: "혜리", Language: "ko-KR", Gender: "female", AgeGroup: "youth"},
		{ID: "vgoeun", Name: "고은", Language: "ko-KR", Gender: "female", AgeGroup: "youth"},
		{ID: "ntiffany", Name: "티파니", Language: "ko-KR", Gender: "female", AgeGroup: "youth"},
	}
}
