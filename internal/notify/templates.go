package notify

import (
	"fmt"
	"profileflow/pkg/domain"
	"time"
)

// subjectDate is the dd/mm/yy stamp appended to every subject.
const subjectDate = "02/01/06"

type message struct {
	subject string
	body    string
}

func newProfileMessage(n domain.Notification, now time.Time) message {
	return message{
		subject: "🎉 Welcome to Al Rawdha! Your Matrimonial Profile is Ready " + now.Format(subjectDate),
		body: fmt.Sprintf(`Assalamu Alaykum %s,

Your Al Rawdha Matrimonial Profile has been successfully created.
Attached is your profile PDF. Please review it and make sure everything looks correct.
This is the version that will be shared anonymously through the Al Rawdha Matrimonial channel, insha'Allah.

✨ Your unique Profile ID: %s
🔐 Your unique Profile Key: %s

These details let you update or refine your profile in the future.
Please keep your Profile Key safe and private; it is your personal way to manage your information.

May Allah bless your efforts and guide you towards the right match.

Warm regards,
Al Rawdha Community Matchmaking
`, n.Name, n.ProfileID, n.ProfileKey),
	}
}

func amendedMessage(n domain.Notification, now time.Time) message {
	return message{
		subject: "📝 Al Rawdha Profile Updated Successfully " + now.Format(subjectDate),
		body: fmt.Sprintf(`Assalamu Alaikum %s,

MashAllah! Your Al Rawdha Matrimonial Profile (%s) has been successfully updated.

You can continue to use your Profile ID and Profile Key for any future updates.

Attached is the updated profile PDF for your reference. Please review it to ensure all details are correct.

May Allah bless your efforts and guide you towards the right match.

Warm regards,
Al Rawdha Community Matrimonial Team
`, n.Name, n.ProfileID),
	}
}

func errorMessage(n domain.Notification, now time.Time) message {
	return message{
		subject: "⚠️ Al Rawdha Matrimonial Amendment Error " + now.Format(subjectDate),
		body: fmt.Sprintf(`Assalamu Alaykum %s,

It looks like either the Profile ID (%s), the Profile Key (%s), or both are incorrect.

If you are trying to amend an existing profile, please use the Profile ID and Profile Key that were emailed to you when your profile was first created.

Warm regards,
Al Rawdha Community Matrimonial Team
`, n.Name, n.ProfileID, n.ProfileKey),
	}
}
