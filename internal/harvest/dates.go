package harvest

import (
	"fmt"
	"regexp"
	"time"
)

// Matches 20190913T053000+1000, 20190913_053000, 2019-09-13T05-30-00Z and
// similar stamps anywhere in a file name.
var stampPattern = regexp.MustCompile(`(?:^|\D)(\d{4})-?(\d{2})-?(\d{2})[T_-](\d{2})[-:]?(\d{2})[-:]?(\d{2})(Z|[+-]\d{2}(?::?\d{2})?)?(?:\D|$)`)

// ParseRecordedDate extracts the recording start from a file name. Stamps
// carrying their own offset win over utcOffset. A stamp without one stays
// unresolved (RecordedDate nil, DateStamp set) unless utcOffset is given.
func ParseRecordedDate(name string, utcOffset *string) (*AdvancedInfo, error) {
	info := &AdvancedInfo{}
	m := stampPattern.FindStringSubmatch(name)
	if m == nil {
		return info, nil
	}

	local := fmt.Sprintf("%s%s%s%s%s%s", m[1], m[2], m[3], m[4], m[5], m[6])
	if _, err := time.Parse("20060102150405", local); err != nil {
		return info, nil
	}
	info.DateStamp = local + m[7]

	offset := m[7]
	if offset == "" && utcOffset != nil {
		offset = *utcOffset
	}
	if offset == "" {
		return info, nil
	}

	loc, err := ParseUTCOffset(offset)
	if err != nil {
		return nil, err
	}
	recorded, err := time.ParseInLocation("20060102150405", local, loc)
	if err != nil {
		return nil, domainError(CodeMetadata, "could not parse recorded date", err)
	}
	_, seconds := recorded.Zone()
	formatted := FormatUTCOffset(seconds)
	recorded = recorded.UTC()
	info.RecordedDate = &recorded
	info.UTCOffset = &formatted
	return info, nil
}
